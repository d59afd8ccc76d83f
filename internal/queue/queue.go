package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Message types.
const (
	TypeScan   = "scan"
	TypeTicket = "ticket"
)

// Message is one queued scan or ticket request.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMessage encodes payload as a message of the given type.
func NewMessage(typ string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s message: %w", typ, err)
	}
	return Message{ID: ulid.Make().String(), Type: typ, Body: body, CreatedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s message %s: %w", m.Type, m.ID, err)
	}
	return nil
}

// ScanRequest is a decoded barcode handed to a station.
type ScanRequest struct {
	Code string `json:"code"`
	Mode string `json:"mode,omitempty"`
}

// Queue carries messages between producers and a single consumer loop.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a buffered channel queue for a single process.
type InMemory struct {
	ch chan Message
}

// NewInMemory holds up to size unconsumed messages.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish blocks while the buffer is full and gives up when ctx ends.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that closes when ctx ends. A message taken off
// the buffer but not delivered before ctx ends is put back.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					if err := q.Requeue(context.Background(), msg); err != nil {
						log.Printf("queue: lost message %s: %v", msg.ID, err)
					}
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Requeue returns a message the consumer could not handle yet. It never
// blocks: a full buffer is an error.
func (q *InMemory) Requeue(_ context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return errors.New("queue full")
	}
}

// Len reports the number of buffered messages.
func (q *InMemory) Len() int { return len(q.ch) }

// RedisQueue keeps messages as JSON in a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue pushes with LPUSH and pops with BRPOP, so key is FIFO.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "checkin:queue"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume streams messages using BRPOP. Entries that are not valid messages
// are logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if err != redis.Nil {
					log.Printf("queue %s: brpop failed: %v", q.key, err)
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				log.Printf("queue %s: dropping malformed entry: %v", q.key, err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				if err := q.Requeue(context.Background(), msg); err != nil {
					log.Printf("queue %s: lost message %s: %v", q.key, msg.ID, err)
				}
				return
			}
		}
	}()
	return out, nil
}

// Requeue puts msg back at the consuming end of the list, so it is the next
// message popped.
func (q *RedisQueue) Requeue(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.client.RPush(ctx, q.key, b).Err()
}
