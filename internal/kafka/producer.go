package kafka

import (
	"context"
	"encoding/json"
	"ms-reconcile/internal/config"
	"ms-reconcile/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes order lifecycle events for the downstream collaborators
// (confirmation notifier, shipping-label creation, operator queue).
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

func (p *Producer) publish(topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// PublishOrderFinalized streams the finalization event to Kafka
func (p *Producer) PublishOrderFinalized(event models.OrderEvent) error {
	return p.publish(p.Topics.OrderFinalized, event.OrderID, event)
}

// PublishOrderCancelled streams the cancellation event to Kafka
func (p *Producer) PublishOrderCancelled(event models.OrderEvent) error {
	return p.publish(p.Topics.OrderCancelled, event.OrderID, event)
}

// PublishShortfall streams an under-applied stock decrement to the operator queue
func (p *Producer) PublishShortfall(event models.ShortfallEvent) error {
	return p.publish(p.Topics.LedgerShortfall, event.OrderID, event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
