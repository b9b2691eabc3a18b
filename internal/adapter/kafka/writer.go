// Package kafka publishes clean measurement rows to a Kafka topic for
// downstream consumers (grid interpolation, archival).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/precip-cleaner/internal/config"
	"github.com/couchcryptid/precip-cleaner/internal/domain"
)

// Writer produces clean rows to the sink topic. It implements
// pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishClean serializes and publishes clean rows in a single
// WriteMessages call. Messages are keyed by sensor ID so one sensor's
// series stays ordered within a partition.
func (w *Writer) PublishClean(ctx context.Context, rows []domain.CleanMeasurement) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a clean row into a Kafka message.
func serializeToMessage(row domain.CleanMeasurement) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize clean measurement: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "version", Value: []byte(strconv.Itoa(row.Version))},
		{Key: "ts", Value: []byte(row.TS.Format(time.RFC3339))},
	}
	if row.ImputationMethod != nil {
		headers = append(headers, kafkago.Header{
			Key: "imputation_method", Value: []byte(*row.ImputationMethod),
		})
	}
	return kafkago.Message{
		Key:     []byte(row.SensorID),
		Value:   data,
		Headers: headers,
	}, nil
}
