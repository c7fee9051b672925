package writer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	appconfig "orderly/config"
	"orderly/internal/fanout"
	"orderly/logger"
	"orderly/models"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes every merged book as JSON, keyed by symbol.
type KafkaWriter struct {
	*bookSink
	writer MessageWriter
}

func NewKafkaWriter(cfg appconfig.KafkaConfig, dist *fanout.Distributor, reportInterval time.Duration) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	kw := newKafkaWriter(dist, w, reportInterval)
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka writer initialized")
	return kw, nil
}

func newKafkaWriter(dist *fanout.Distributor, w MessageWriter, reportInterval time.Duration) *KafkaWriter {
	kw := &KafkaWriter{writer: w}
	kw.bookSink = newBookSink("kafka_writer", dist, reportInterval, kw.publish)
	return kw
}

func (kw *KafkaWriter) publish(ctx context.Context, book models.MergedBook, data []byte) error {
	return kw.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(book.Symbol),
		Value: data,
		Time:  book.UpdatedAt,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(uuid.NewString())},
			{Key: "sequence", Value: []byte(strconv.FormatUint(book.Sequence, 10))},
		},
	})
}

// Stop drains the subscription and closes the Kafka writer.
func (kw *KafkaWriter) Stop() {
	kw.bookSink.Stop()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
}
