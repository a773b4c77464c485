package feed

import (
	"context"

	"go.uber.org/zap"

	"fidoochat/internal/storage"
)

// Notifier signals that a collection changed.
type Notifier interface {
	Changes(ctx context.Context) (<-chan struct{}, error)
}

// NewKafkaSource reads the collection from repo each time the Kafka topic
// behind n receives a record.
func NewKafkaSource(repo storage.MessageRepository, n Notifier, log *zap.Logger) *ChangeSource {
	return &ChangeSource{
		name:    "kafka",
		load:    repo.FindAll,
		changes: n.Changes,
		log:     log.Named("feed.kafka"),
	}
}
