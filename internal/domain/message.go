package domain

import (
	"sort"
	"time"
)

// Message is one chat entry as observed in the remote collection.
type Message struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"authorId"`
	AuthorLabel string    `json:"authorLabel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Feed is an ordered, read-only view of the message collection.
type Feed []Message

// NewFeed copies msgs and orders the copy ascending by CreatedAt. Messages
// sharing a timestamp keep their arrival order.
func NewFeed(msgs []Message) Feed {
	feed := make(Feed, len(msgs))
	copy(feed, msgs)
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].CreatedAt.Before(feed[j].CreatedAt)
	})
	return feed
}

// Clone returns a copy that callers are free to keep.
func (f Feed) Clone() Feed {
	if f == nil {
		return nil
	}
	out := make(Feed, len(f))
	copy(out, f)
	return out
}

func (f Feed) Len() int { return len(f) }

// Last returns the newest message, if any.
func (f Feed) Last() (Message, bool) {
	if len(f) == 0 {
		return Message{}, false
	}
	return f[len(f)-1], true
}
