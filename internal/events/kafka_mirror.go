package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/converse-im/converse/pkg/log"
)

type KafkaMirror struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewKafkaMirror(brokers, topic string, partitions int) (*KafkaMirror, error) {
	// Ensure topic exists with desired partition count
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		log.L().Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	km := &KafkaMirror{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go km.deliveryReportHandler()

	return km, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (km *KafkaMirror) deliveryReportHandler() {
	for e := range km.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.L().Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
			}
		}
	}
	close(km.doneCh)
}

// Publish mirrors one room event. The conversation id is the record key
// so a conversation's events stay ordered within a partition.
func (km *KafkaMirror) Publish(ctx context.Context, eventType, conversationID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	value, err := json.Marshal(&Envelope{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        raw,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	err = km.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &km.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(conversationID),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	return nil
}

func (km *KafkaMirror) Close() error {
	km.producer.Flush(5000)
	km.producer.Close()
	<-km.doneCh
	return nil
}
