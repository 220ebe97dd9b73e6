package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBackplane fans frames out through a Kafka topic so gateway
// instances behind a load balancer all see every frame. Each instance
// consumes with a unique group id: the topic behaves as a broadcast bus,
// not a work queue.
type KafkaBackplane struct {
	producer *kafka.Writer
	consumer *kafka.Reader
	cancel   context.CancelFunc
}

type KafkaBackplaneConfig struct {
	HostPort string
	Topic    string
	Timeout  time.Duration
}

func NewKafkaBackplane(cfg KafkaBackplaneConfig) *KafkaBackplane {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	producer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.Timeout,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: true,
	}
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.HostPort},
		Topic:   cfg.Topic,
		// Unique per instance: every gateway receives every frame.
		GroupID:        "gateway-" + uuid.NewString(),
		CommitInterval: cfg.Timeout,
		StartOffset:    kafka.LastOffset,
	})
	return &KafkaBackplane{producer: producer, consumer: consumer}
}

func (b *KafkaBackplane) Publish(ctx context.Context, frame Frame) error {
	value, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return b.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(frame.Room),
		Value: value,
	})
}

func (b *KafkaBackplane) Start(deliver func(Frame)) {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go func() {
		zap.L().Info("kafka backplane consume loop start")
		for {
			msg, err := b.consumer.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				zap.L().Error("kafka backplane read failed", zap.Error(err))
				continue
			}
			var frame Frame
			if err := json.Unmarshal(msg.Value, &frame); err != nil {
				zap.L().Error("kafka backplane frame decode failed", zap.Error(err))
				continue
			}
			deliver(frame)
		}
	}()
}

func (b *KafkaBackplane) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if err := b.producer.Close(); err != nil {
		zap.L().Error("kafka producer close failed", zap.Error(err))
	}
	if err := b.consumer.Close(); err != nil {
		zap.L().Error("kafka consumer close failed", zap.Error(err))
	}
}

var _ Backplane = (*KafkaBackplane)(nil)
