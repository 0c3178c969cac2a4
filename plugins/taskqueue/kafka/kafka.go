// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package kafka carries tasks over a Kafka compatible broker, so that
// the HTTP front end and the parsing workers can run in different
// processes.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/taskqueue"
)

// Encode returns the record key and value of t. Tasks for the same
// job/kernel share a key, hence a partition.
func Encode(t taskqueue.Task) (key string, value []byte, err error) {
	value, err = json.Marshal(t)
	if err != nil {
		return "", nil, err
	}
	switch {
	case t.Job != "" || t.Kernel != "":
		key = t.Job + "/" + t.Kernel
	case t.BuildID != "":
		key = t.BuildID
	default:
		key = t.ID
	}
	return key, value, nil
}

// Decode parses a record value.
func Decode(value []byte) (taskqueue.Task, error) {
	var t taskqueue.Task
	if err := json.Unmarshal(value, &t); err != nil {
		return t, err
	}
	if t.Name == "" {
		return t, errors.New("task without a name")
	}
	return t, nil
}

// Producer is a taskqueue.Queue publishing to a topic.
type Producer struct {
	client *kgo.Client
	topic  string

	mu     sync.RWMutex
	closed bool
}

// NewProducer connects a producer to brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

func (p *Producer) Enqueue(ctx context.Context, t taskqueue.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return taskqueue.ErrClosed
	}
	key, value, err := Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce task: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.client.Close()
	}
	return nil
}

// Consumer reads tasks of a topic as a member of a consumer group.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer joins group on topic.
func NewConsumer(brokers []string, topic, group string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Consume hands every received task to sink until ctx is done or the
// client is closed. Offsets are committed only once sink accepted the
// task, so delivery is at-least-once. Undecodable records are logged,
// skipped and committed.
func (c *Consumer) Consume(ctx context.Context, sink func(context.Context, taskqueue.Task) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			logging.Errorf(ctx, "Fetch error on %s/%d: %v", fe.Topic, fe.Partition, fe.Err)
		}
		done, sinkErr := deliver(ctx, fetches.Records(), sink)
		if len(done) > 0 {
			if err := c.client.CommitRecords(context.WithoutCancel(ctx), done...); err != nil {
				logging.Errorf(ctx, "Could not commit %d records: %v", len(done), err)
			}
		}
		if sinkErr != nil {
			return sinkErr
		}
	}
}

// deliver passes records to sink in order and stops at the first refusal.
// It returns the records that can be committed.
func deliver(ctx context.Context, records []*kgo.Record, sink func(context.Context, taskqueue.Task) error) ([]*kgo.Record, error) {
	done := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		t, err := Decode(r.Value)
		if err != nil {
			logging.Errorf(ctx, "Dropping malformed task at %s/%d@%d: %v", r.Topic, r.Partition, r.Offset, err)
			done = append(done, r)
			continue
		}
		if err := sink(ctx, t); err != nil {
			return done, err
		}
		done = append(done, r)
	}
	return done, nil
}

func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

var _ taskqueue.Queue = (*Producer)(nil)
