package classifier

import (
	"regexp"
	"strings"
)

// versionPattern matches version tokens like "UE5.4", "UE 5.3",
// "Unreal Engine 5.2", "v5.1" or a bare "5.4". The numeric part is captured.
var versionPattern = regexp.MustCompile(`(?i)(?:UE|Unreal\s+Engine|Version|v)?\s*(\d+\.\d+(?:\.\d+)?)`)

// mentionPattern requires the engine itself to be named, either spelled out
// or as a standalone "UE" token, optionally fused with the major version
// ("UE5", "UE 5"). Matched on word boundaries so it never fires inside
// another word.
var mentionPattern = regexp.MustCompile(`(?i)\b(?:UE\s*\d*|Unreal\s+Engine)\b`)

// updateKeywords hint at release announcements. They are reported on the
// result but do not gate the decision: a version token plus an engine
// mention is sufficient.
var updateKeywords = []string{
	"update", "updated", "new version", "release", "released",
	"download", "available", "plugin", "marketplace",
}

// Result is the outcome of classifying one message text.
type Result struct {
	IsUpdate    bool
	Version     string
	HasKeywords bool
}

// Classify decides whether text announces an Unreal Engine version update.
// It is pure and total: any string, including the empty one, yields a
// result, and the same text always yields the same result.
//
// Version is the first left-to-right numeric token of shape d+.d+ or
// d+.d+.d+ and is extracted whenever present, even when the text is not an
// update. IsUpdate holds only when both a version token and an engine
// mention are found.
func Classify(text string) Result {
	res := Result{HasKeywords: containsKeyword(text)}

	if m := versionPattern.FindStringSubmatch(text); m != nil {
		res.Version = m[1]
	}

	res.IsUpdate = res.Version != "" && mentionPattern.MatchString(text)

	return res
}

func containsKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range updateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
