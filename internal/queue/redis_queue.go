package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrEmpty = errors.New("queue empty")

type EventType string

const (
	EventDomainAdded   EventType = "domain_added"
	EventDomainDeleted EventType = "domain_deleted"
	EventAddressAdded  EventType = "address_added"
)

// Event is a usage record consumed by the billing side.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	OwnerID   string    `json:"owner_id"`
	DomainID  string    `json:"domain_id"`
	Domain    string    `json:"domain,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisQueue keeps events in a sorted set scored by creation time so
// consumers read them oldest first.
type RedisQueue struct {
	client    *redis.Client
	queueName string
}

func NewRedisQueue(client *redis.Client, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = "usage:events"
	}
	return &RedisQueue{
		client:    client,
		queueName: queueName,
	}
}

func (q *RedisQueue) Push(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = q.client.ZAdd(ctx, q.queueName, redis.Z{
		Score:  float64(event.CreatedAt.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push event: %w", err)
	}

	return nil
}

// Pop removes and returns the oldest event, or ErrEmpty.
func (q *RedisQueue) Pop(ctx context.Context) (*Event, error) {
	result, err := q.client.ZPopMin(ctx, q.queueName, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop event: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrEmpty
	}

	member, ok := result[0].Member.(string)
	if !ok {
		return nil, errors.New("invalid result from queue")
	}

	var event Event
	if err := json.Unmarshal([]byte(member), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueName).Result()
}
