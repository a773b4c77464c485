package feed

import (
	"context"

	"go.uber.org/zap"

	"fidoochat/internal/storage"
)

// NewPostgresSource watches a message table through LISTEN/NOTIFY.
func NewPostgresSource(p *storage.Postgres, channel string, log *zap.Logger) *ChangeSource {
	return &ChangeSource{
		name: "postgres",
		load: p.FindAll,
		changes: func(ctx context.Context) (<-chan struct{}, error) {
			return p.Changes(ctx, channel)
		},
		log: log.Named("feed.postgres"),
	}
}
