package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

type Postgres struct {
	db  *sql.DB
	dsn string
	log *zap.Logger
}

func NewPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db, dsn: dsn, log: log.Named("postgres")}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// FindAll reads every row of the collection table, oldest first.
func (p *Postgres) FindAll(ctx context.Context, collection string) ([]domain.Message, error) {
	rows, err := p.db.QueryContext(ctx, FindAllQuery(collection))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Text,
			&msg.AuthorID,
			&msg.AuthorLabel,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func FindAllQuery(collection string) string {
	return `
		SELECT id, text, author_id, author_label, created_at
		FROM ` + pq.QuoteIdentifier(collection) + `
		ORDER BY created_at ASC
	`
}

// Changes listens on a NOTIFY channel and signals once per notification,
// including the nil notification pq sends after a reconnect, since changes
// may have been missed while disconnected.
func (p *Postgres) Changes(ctx context.Context, channel string) (<-chan struct{}, error) {
	listener := pq.NewListener(p.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.log.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})

	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-listener.Notify:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}
