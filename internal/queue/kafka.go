package queue

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const retryDelay = time.Second

// KafkaNotifier turns a Kafka topic into change signals for one collection.
// Payloads are ignored: every record only means the collection changed, and
// readers re-query it in full.
type KafkaNotifier struct {
	group sarama.ConsumerGroup
	topic string
	log   *zap.Logger
}

func NewKafkaNotifier(brokers []string, groupID, topic string, log *zap.Logger) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return newKafkaNotifier(group, topic, log), nil
}

func newKafkaNotifier(group sarama.ConsumerGroup, topic string, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		group: group,
		topic: topic,
		log:   log.Named("queue.kafka"),
	}
}

// Changes consumes the topic until ctx is done. Signals are coalesced: a
// burst of records while the reader is busy yields one pending signal.
func (n *KafkaNotifier) Changes(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	h := &changeHandler{out: out}

	go func() {
		defer close(out)

		for {
			if err := n.group.Consume(ctx, []string{n.topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				n.log.Error("consume", zap.String("topic", n.topic), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, nil
}

func (n *KafkaNotifier) Close() error {
	return n.group.Close()
}

type changeHandler struct {
	out chan<- struct{}
}

func (h *changeHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *changeHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *changeHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.out <- struct{}{}:
			default:
			}
			session.MarkMessage(msg, "")
		}
	}
}
