package marker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testMarker(t *testing.T, m ProcessMarker) {
	t.Helper()
	ctx := context.Background()

	got, err := m.Acquire(ctx, "msg-1")
	if err != nil || !got {
		t.Fatalf("first Acquire: got=%t, err=%v", got, err)
	}
	got, err = m.Acquire(ctx, "msg-1")
	if err != nil || got {
		t.Fatalf("second Acquire: got=%t, err=%v", got, err)
	}
	got, err = m.Acquire(ctx, "msg-2")
	if err != nil || !got {
		t.Fatalf("other message: got=%t, err=%v", got, err)
	}

	if err := m.Release(ctx, "msg-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, err = m.Acquire(ctx, "msg-1")
	if err != nil || !got {
		t.Fatalf("Acquire after Release: got=%t, err=%v", got, err)
	}
}

func TestLocalMarker(t *testing.T) {
	testMarker(t, NewLocalMarker(time.Minute))
}

func TestRedisMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	cl := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer cl.Close()

	testMarker(t, NewRedisMarker(cl, "view-counter-processed:", time.Minute))

	if ttl := mr.TTL("view-counter-processed:msg-2"); ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %s", ttl)
	}
}

func TestRedisMarkerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	cl := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer cl.Close()
	ctx := context.Background()
	m := NewRedisMarker(cl, "p:", time.Minute)

	if got, _ := m.Acquire(ctx, "msg"); !got {
		t.Fatal("expected first Acquire to succeed")
	}
	mr.FastForward(2 * time.Minute)
	if got, _ := m.Acquire(ctx, "msg"); !got {
		t.Fatal("expected Acquire to succeed after expiry")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(nil, "p:", time.Minute).(*LocalMarker); !ok {
		t.Error("expected LocalMarker without a redis client")
	}

	mr := miniredis.RunT(t)
	cl := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer cl.Close()

	m := New(cl, "p:", time.Minute)
	if _, ok := m.(*RedisMarker); !ok {
		t.Fatalf("expected RedisMarker, got %T", m)
	}
	if got, err := m.Acquire(context.Background(), "msg"); err != nil || !got {
		t.Fatalf("Acquire: got=%t, err=%v", got, err)
	}
	if !mr.Exists("p:msg") {
		t.Error("expected the marker key in redis")
	}
}
