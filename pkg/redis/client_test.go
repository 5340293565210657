package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	queue := client.CompensationQueueKey("pending")
	if err := client.Enqueue(ctx, queue, `{"product_id":1,"quantity":2}`); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := client.Enqueue(ctx, queue, `{"product_id":2,"quantity":1}`); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	n, err := client.QueueLen(ctx, queue)
	if err != nil {
		t.Fatalf("queue len failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", n)
	}

	first, err := client.Dequeue(ctx, queue)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if first != `{"product_id":1,"quantity":2}` {
		t.Fatalf("expected FIFO order, got %q", first)
	}

	if _, err := client.Dequeue(ctx, queue); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if _, err := client.Dequeue(ctx, queue); err != ErrQueueEmpty {
		t.Fatalf("expected ErrQueueEmpty on drained queue, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.CompensationQueueKey("pending"); got != "ecoviva:compensation:pending" {
		t.Fatalf("unexpected compensation key %s", got)
	}
}

type mockCmdable struct {
	lists map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{lists: make(map[string][]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append([]string{fmt.Sprint(v)}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) RPop(ctx context.Context, key string) *redis.StringCmd {
	list := m.lists[key]
	if len(list) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	last := list[len(list)-1]
	m.lists[key] = list[:len(list)-1]
	return redis.NewStringResult(last, nil)
}

func (m *mockCmdable) LLen(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}
