package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text     string
		isUpdate bool
		version  string
	}{
		{"New UE 5.4 plugin update available!", true, "5.4"},
		{"Updated to Unreal Engine 5.3", true, "5.3"},
		{"Plugin released for UE5.2", true, "5.2"},
		{"Version 5.1 now available for download", false, "5.1"}, // no engine mention
		{"UE 5.0 marketplace update", true, "5.0"},
		{"New features in v5.4", false, "5.4"}, // no engine mention
		{"Just random text", false, ""},
		{"Version 1.0 for Unity", false, "1.0"}, // no engine mention
		{"UE without version number", false, ""},
		{"5.4 alone without context", false, "5.4"},
		{"Download UE5.4 now!", true, "5.4"},
		{"Unreal Engine 5.3 plugin released", true, "5.3"},
		{"UE5.1 available", true, "5.1"},
		{"Unreal Engine 4.27 update", true, "4.27"}, // not restricted to UE5
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := Classify(tt.text)
			assert.Equal(t, tt.isUpdate, res.IsUpdate)
			assert.Equal(t, tt.version, res.Version)
		})
	}
}

func TestClassifyEmptyText(t *testing.T) {
	res := Classify("")
	assert.False(t, res.IsUpdate)
	assert.Empty(t, res.Version)
	assert.False(t, res.HasKeywords)
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify("New UE 5.4 plugin update available!")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify("New UE 5.4 plugin update available!"))
	}
}

func TestClassifyExtractsFirstVersionToken(t *testing.T) {
	res := Classify("UE 5.3 supersedes 5.2 and 5.1")
	assert.True(t, res.IsUpdate)
	assert.Equal(t, "5.3", res.Version)
}

func TestClassifyPatchVersions(t *testing.T) {
	res := Classify("Unreal Engine 5.3.2 hotfix released")
	assert.True(t, res.IsUpdate)
	assert.Equal(t, "5.3.2", res.Version)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"unreal engine 5.1 update",
		"UNREAL   ENGINE 5.1 UPDATE",
		"ue 5.1 update",
		"VERSION 5.1 for UE",
	} {
		res := Classify(text)
		assert.True(t, res.IsUpdate, "text: %q", text)
		assert.Equal(t, "5.1", res.Version, "text: %q", text)
	}
}

func TestClassifyKeywordsDoNotGateDecision(t *testing.T) {
	// Both signals present, no keyword: still an update.
	res := Classify("Unreal Engine 5.3")
	assert.True(t, res.IsUpdate)
	assert.False(t, res.HasKeywords)

	// Keywords alone never make an update.
	res = Classify("big update, download now")
	assert.False(t, res.IsUpdate)
	assert.True(t, res.HasKeywords)
}

func TestClassifyMentionNeedsWordBoundary(t *testing.T) {
	// "UE" embedded inside other words must not count as a mention.
	res := Classify("the queue value is 5.4")
	assert.False(t, res.IsUpdate)
	assert.Equal(t, "5.4", res.Version)
}
