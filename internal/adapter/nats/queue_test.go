package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/entgrid/entitled/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a test subject under the "certs." prefix which
// the ENTITLED stream captures (certs.>).
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "certs.test." + t.Name()
}

func TestQueuePublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	want := messagequeue.RegenRequestPayload{ProductID: "prod-1", Reason: "product updated"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *messagequeue.RegenRequestPayload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got messagequeue.RegenRequestPayload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.ProductID != want.ProductID {
		t.Fatalf("received %+v, want %+v", received, want)
	}
}

func TestQueueHandlerContextFollowsSubscriber(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu         sync.Mutex
		handlerCtx context.Context
		done       = make(chan struct{})
		once       sync.Once
	)
	stop, err := q.Subscribe(subCtx, subject, func(c context.Context, _ string, _ []byte) error {
		mu.Lock()
		handlerCtx = c
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	got := handlerCtx
	mu.Unlock()
	if got.Err() != nil {
		t.Fatalf("handler context canceled while subscriber is live: %v", got.Err())
	}
	cancel()
	select {
	case <-got.Done():
	case <-time.After(time.Second):
		t.Fatal("handler context does not follow the subscriber context")
	}
}

func TestQueueHandlerErrorRedelivers(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	var (
		mu       sync.Mutex
		attempts int
		done     = make(chan struct{})
	)

	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return context.DeadlineExceeded // nak → redelivery
		}
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("message was not redelivered after handler failure")
	}
}
