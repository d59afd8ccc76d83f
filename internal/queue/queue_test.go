package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg, err := NewMessage(TypeScan, ScanRequest{Code: "123456789012", Mode: "time-in"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.ID) != 26 {
		t.Errorf("id = %q", msg.ID)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-ch:
		var req ScanRequest
		if err := got.Decode(&req); err != nil {
			t.Fatal(err)
		}
		if got.ID != msg.ID || got.Type != TypeScan || req.Code != "123456789012" || req.Mode != "time-in" {
			t.Errorf("got %+v %+v", got, req)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("unexpected message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestDecodeError(t *testing.T) {
	msg := Message{ID: "x", Type: TypeScan, Body: []byte(`"not an object"`)}
	var req ScanRequest
	if err := msg.Decode(&req); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: TypeTicket}); err == nil {
		t.Fatal("publish to a full queue should fail when ctx ends")
	}
}

func TestInMemoryRequeue(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	first := Message{ID: "1", Type: TypeScan}
	if err := q.Requeue(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := q.Requeue(ctx, Message{ID: "2"}); err == nil {
		t.Error("requeue into a full buffer should fail")
	}

	// A consumer that stops before anyone reads leaves the message queued.
	cctx, cancel := context.WithCancel(ctx)
	if _, err := q.Consume(cctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	deadline := time.Now().Add(time.Second)
	for q.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, message dropped", q.Len())
	}
}

func TestRedisQueueRequeueGoesFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "scans")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b"} {
		if err := q.Publish(ctx, Message{ID: id, Type: TypeScan}); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Requeue(ctx, Message{ID: "held", Type: TypeScan}); err != nil {
		t.Fatal(err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for len(got) < 3 {
		select {
		case msg := <-ch:
			got = append(got, msg.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %v, timed out", got)
		}
	}
	if got[0] != "held" || got[1] != "a" || got[2] != "b" {
		t.Errorf("order = %v", got)
	}
}
