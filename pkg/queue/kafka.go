package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig points the queue at a topic consumers produce samples to.
type KafkaConfig struct {
	Brokers []string `validate:"required,min=1"`
	Topic   string   `validate:"required"`
	Group   string   `validate:"required"`
}

const (
	// kafkaJoinTimeout bounds how long Flush waits for the group to hand this
	// member its partitions.
	kafkaJoinTimeout  = 30 * time.Second
	kafkaFlushTimeout = 500 * time.Millisecond
)

// Kafka reads samples through a consumer group with auto-commit disabled.
// Reserve polls one record; Delete commits it. Records that are never committed
// are consumed again after a group rebalance or restart.
type Kafka struct {
	client *kgo.Client
	topic  string
	group  string

	assigned     chan struct{}
	assignedOnce sync.Once
	joinTimeout  time.Duration
}

func kafkaOptions(cfg KafkaConfig) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
		kgo.DisableAutoCommit(),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	k := &Kafka{
		topic:       cfg.Topic,
		group:       cfg.Group,
		assigned:    make(chan struct{}),
		joinTimeout: kafkaJoinTimeout,
	}
	client, err := kgo.NewClient(append(kafkaOptions(cfg), kgo.OnPartitionsAssigned(k.onAssigned))...)
	if err != nil {
		return nil, errors.Wrapf(err, "creating kafka client for %v", cfg.Brokers)
	}
	k.client = client
	return k, nil
}

func (k *Kafka) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	if len(assigned[k.topic]) > 0 {
		k.assignedOnce.Do(func() { close(k.assigned) })
	}
}

func (k *Kafka) Reserve(ctx context.Context, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = 10 * time.Millisecond
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := k.client.PollRecords(pollCtx, 1)
	if fetches.IsClientClosed() {
		return nil, errors.New("kafka client closed")
	}
	var fetchErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		fetchErr = errors.Wrapf(err, "fetching %s[%d]", topic, partition)
	})
	if fetchErr != nil {
		return nil, fetchErr
	}
	records := fetches.Records()
	if len(records) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTimeout
	}
	rec := records[0]
	return &Message{
		ID:     rec.Topic + "/" + strconv.Itoa(int(rec.Partition)) + "/" + strconv.FormatInt(rec.Offset, 10),
		Body:   rec.Value,
		handle: rec,
	}, nil
}

func (k *Kafka) Delete(ctx context.Context, msg *Message) error {
	rec, ok := msg.handle.(*kgo.Record)
	if !ok {
		return errors.WithStack(ErrNotReserved)
	}
	if err := k.client.CommitRecords(ctx, rec); err != nil {
		return errors.Wrapf(err, "committing %s", msg.ID)
	}
	return nil
}

func (k *Kafka) Put(ctx context.Context, body []byte) error {
	if err := k.client.ProduceSync(ctx, &kgo.Record{Topic: k.topic, Value: body}).FirstErr(); err != nil {
		return errors.Wrapf(err, "producing to %s", k.topic)
	}
	return nil
}

// Flush commits everything on the topic. A member that has not been assigned
// partitions yet polls nothing, so Flush first waits for the assignment.
func (k *Kafka) Flush(ctx context.Context) (int, error) {
	timer := time.NewTimer(k.joinTimeout)
	defer timer.Stop()
	select {
	case <-k.assigned:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, errors.Errorf("kafka group %s was not assigned %s within %s", k.group, k.topic, k.joinTimeout)
	}
	return Drain(ctx, k, kafkaFlushTimeout)
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
