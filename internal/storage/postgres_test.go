package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindAllQuery(t *testing.T) {
	q := FindAllQuery("messages")
	assert.Contains(t, q, `FROM "messages"`)
	assert.Contains(t, q, "ORDER BY created_at ASC")
}

func TestFindAllQuery_QuotesIdentifier(t *testing.T) {
	q := FindAllQuery(`messages"; DROP TABLE users; --`)
	assert.Contains(t, q, `"messages""; DROP TABLE users; --"`)
	assert.Equal(t, 1, strings.Count(q, "FROM"))
}

var _ MessageRepository = (*Postgres)(nil)
