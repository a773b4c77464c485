package feed

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

// PollSource reads an Atom or RSS rendering of the collection on a fixed
// interval. Entry author name is the author id and author email the label.
// A "{collection}" placeholder in the URL is replaced by the query's
// collection.
type PollSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	parser   *gofeed.Parser
	log      *zap.Logger
}

func NewPollSource(url string, interval time.Duration, log *zap.Logger) *PollSource {
	return &PollSource{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 15 * time.Second},
		parser:   gofeed.NewParser(),
		log:      log.Named("feed.poll"),
	}
}

func (p *PollSource) Listen(ctx context.Context, q Query, onSnapshot func([]domain.Message), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		watch(ctx, ticker.C, func(ctx context.Context) ([]domain.Message, error) {
			return p.Fetch(ctx, q.Collection)
		}, onSnapshot, onError)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Fetch performs a single poll.
func (p *PollSource) Fetch(ctx context.Context, collection string) ([]domain.Message, error) {
	url := strings.ReplaceAll(p.url, "{collection}", collection)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	parsed, err := p.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		messages = append(messages, itemToMessage(item))
	}

	p.log.Debug("polled", zap.String("collection", collection), zap.Int("messages", len(messages)))
	return messages, nil
}

func itemToMessage(item *gofeed.Item) domain.Message {
	var createdAt time.Time
	switch {
	case item.PublishedParsed != nil:
		createdAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		createdAt = *item.UpdatedParsed
	}

	text := item.Content
	if text == "" {
		text = item.Description
	}
	if text == "" {
		text = item.Title
	}

	msg := domain.Message{
		ID:        item.GUID,
		Text:      strings.TrimSpace(text),
		CreatedAt: createdAt,
	}

	author := item.Author
	if len(item.Authors) > 0 {
		author = item.Authors[0]
	}
	if author != nil {
		msg.AuthorID = author.Name
		msg.AuthorLabel = author.Email
		if msg.AuthorLabel == "" {
			msg.AuthorLabel = author.Name
		}
	}

	if msg.ID == "" {
		msg.ID = generateID(item.Link + "|" + createdAt.String() + "|" + msg.Text)
	}

	return msg
}

func generateID(seed string) string {
	hash := md5.Sum([]byte(seed))
	return fmt.Sprintf("%x", hash)[:12]
}
