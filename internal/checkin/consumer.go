package checkin

import (
	"context"
	"errors"
	"log"
	"time"

	"eventcheckin/internal/queue"
)

// ScanSource delivers queued scan messages and takes back the ones a
// stopped scanner could not handle.
type ScanSource interface {
	Consume(ctx context.Context) (<-chan queue.Message, error)
	Requeue(ctx context.Context, msg queue.Message) error
}

// ConsumeScans resolves queued scans until ctx ends. Messages are only taken
// off the queue while the scanner session is active; a stopped scanner
// leaves them queued.
func (r *Resolver) ConsumeScans(ctx context.Context, q ScanSource) {
	log.Println("scan consumer started, waiting for messages...")
	defer log.Println("scan consumer stopped")
	for {
		if err := r.session.WaitActive(ctx); err != nil {
			return
		}
		active, cancel := context.WithCancel(ctx)
		go func() {
			if r.session.WaitInactive(active) == nil {
				cancel()
			}
		}()
		r.drain(ctx, active, q)
		cancel()
		if ctx.Err() != nil {
			return
		}
	}
}

// drain consumes while active lasts and resolves each scan under ctx, so a
// scanner stop never cuts a remote call short.
func (r *Resolver) drain(ctx, active context.Context, q ScanSource) {
	msgs, err := q.Consume(active)
	if err != nil {
		log.Printf("scan queue consume failed: %v", err)
		select {
		case <-time.After(time.Second):
		case <-active.Done():
		}
		return
	}
	for msg := range msgs {
		if msg.Type != queue.TypeScan {
			log.Printf("ignoring %s message %s", msg.Type, msg.ID)
			continue
		}
		var req queue.ScanRequest
		if err := msg.Decode(&req); err != nil {
			log.Printf("%v", err)
			continue
		}
		var mode Mode
		if req.Mode != "" {
			if mode, err = ParseMode(req.Mode); err != nil {
				log.Printf("scan %s: %v", msg.ID, err)
				continue
			}
		}
		res, err := r.ResolveScan(ctx, req.Code, mode)
		if errors.Is(err, ErrScannerStopped) {
			if err := q.Requeue(ctx, msg); err != nil {
				log.Printf("scan %s: requeue failed: %v", msg.ID, err)
			}
			continue
		}
		if err != nil && res.Outcome == "" {
			log.Printf("scan %s: %v", msg.ID, err)
		}
	}
}
