package storage

import (
	"context"

	"fidoochat/internal/domain"
)

// MessageRepository reads a message collection in ascending creation order.
type MessageRepository interface {
	FindAll(ctx context.Context, collection string) ([]domain.Message, error)
}
