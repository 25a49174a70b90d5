package notifier

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/IBM/sarama"

	"uewatch/internal/domain"
)

// Kafka publishes each UpdateEvent as JSON to a topic, keyed by message id
// so replays of the same message land in the same partition.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Kafka{
		producer: producer,
		topic:    topic,
	}, nil
}

func (k *Kafka) Notify(ctx context.Context, ev domain.UpdateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.MessageID, 10)),
		Value: sarama.ByteEncoder(data),
	})

	return err
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
