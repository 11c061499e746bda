package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

// Incident is the JSON payload published for each harm-subset record.
type Incident struct {
	ObjectID   int64          `json:"object_id"`
	Activity   string         `json:"activity"`
	AIC        string         `json:"aic,omitempty"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Attributes map[string]any `json:"attributes,omitempty"`
	LoadedAt   time.Time      `json:"loaded_at"`
}

// Writer produces harm incidents to a Kafka topic.
// It implements pipeline.IncidentPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured incident topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishIncidents serializes every record and writes them in one
// WriteMessages call. Records with the same OBJECTID land on the same
// partition.
func (w *Writer) PublishIncidents(ctx context.Context, records []domain.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	loadedAt := domain.Now()
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], loadedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d incidents to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("incidents written", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

// Close flushes pending messages and closes the underlying producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(r domain.FeatureRecord, loadedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(Incident{
		ObjectID:   r.ObjectID,
		Activity:   r.Activity,
		AIC:        r.AIC,
		Latitude:   r.Geo.Lat,
		Longitude:  r.Geo.Lon,
		Attributes: r.Attributes,
		LoadedAt:   loadedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident %d: %w", r.ObjectID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(r.ObjectID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "activity", Value: []byte(r.Activity)},
			{Key: "loaded_at", Value: []byte(loadedAt.Format(time.RFC3339))},
		},
	}, nil
}
