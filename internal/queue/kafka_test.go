package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

func (s *fakeSession) offsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "messages.changes" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

// fakeGroup runs a single claim until the consume context ends.
type fakeGroup struct {
	claim   *fakeClaim
	session *fakeSession
	topics  chan []string
	closed  bool
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, h sarama.ConsumerGroupHandler) error {
	select {
	case g.topics <- topics:
	default:
	}
	g.session = &fakeSession{ctx: ctx}
	if err := h.Setup(g.session); err != nil {
		return err
	}
	err := h.ConsumeClaim(g.session, g.claim)
	_ = h.Cleanup(g.session)
	return err
}

func (g *fakeGroup) Errors() <-chan error      { return nil }
func (g *fakeGroup) Close() error              { g.closed = true; return nil }
func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func TestKafkaNotifier_SignalsPerRecord(t *testing.T) {
	g := &fakeGroup{
		claim:  &fakeClaim{msgs: make(chan *sarama.ConsumerMessage)},
		topics: make(chan []string, 1),
	}
	n := newKafkaNotifier(g, "messages.changes", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := n.Changes(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"messages.changes"}, <-g.topics)

	g.claim.msgs <- &sarama.ConsumerMessage{Offset: 7, Value: []byte(`{"id":"m1"}`)}
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}

	cancel()
	for range changes {
	}
	assert.Equal(t, []int64{7}, g.session.offsets())

	require.NoError(t, n.Close())
	assert.True(t, g.closed)
}

func TestKafkaNotifier_CoalescesBursts(t *testing.T) {
	g := &fakeGroup{
		claim:  &fakeClaim{msgs: make(chan *sarama.ConsumerMessage)},
		topics: make(chan []string, 1),
	}
	n := newKafkaNotifier(g, "messages.changes", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := n.Changes(ctx)
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		g.claim.msgs <- &sarama.ConsumerMessage{Offset: i}
	}

	require.Eventually(t, func() bool { return len(g.session.offsets()) == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, changes, 1)

	cancel()
	for range changes {
	}
}
