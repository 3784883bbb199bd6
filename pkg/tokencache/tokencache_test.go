package tokencache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/haivivi/geminilive/pkg/tokencache"
)

func newBadgerStore(t *testing.T) *tokencache.Badger {
	t.Helper()
	s, err := tokencache.NewBadger(tokencache.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRedisStore(t *testing.T) (*tokencache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return tokencache.NewRedis(client, ""), mr
}

func stores(t *testing.T) map[string]tokencache.Store {
	redisStore, _ := newRedisStore(t)
	return map[string]tokencache.Store{
		"memory": tokencache.NewMemory(),
		"badger": newBadgerStore(t),
		"redis":  redisStore,
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "k"); !errors.Is(err, tokencache.ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}

			want := tokencache.Token{Value: "tok-1", Expiry: time.Now().Add(time.Hour).Truncate(time.Second)}
			if err := s.Set(ctx, "k", want); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Value != want.Value {
				t.Errorf("Value = %q, want %q", got.Value, want.Value)
			}
			if !got.Expiry.Equal(want.Expiry) {
				t.Errorf("Expiry = %v, want %v", got.Expiry, want.Expiry)
			}

			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, "k"); !errors.Is(err, tokencache.ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestStoreExpiredToken(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tok := tokencache.Token{Value: "old", Expiry: time.Now().Add(-time.Minute)}
			if err := s.Set(ctx, "k", tok); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if _, err := s.Get(ctx, "k"); !errors.Is(err, tokencache.ErrNotFound) {
				t.Fatalf("Get expired = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	tok := tokencache.Token{Value: "tok", Expiry: time.Now().Add(time.Minute)}
	if err := s.Set(ctx, "k", tok); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL(tokencache.DefaultRedisPrefix + "k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL = %v, want (0, 1m]", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, tokencache.ErrNotFound) {
		t.Fatalf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestTokenValid(t *testing.T) {
	tests := []struct {
		name   string
		tok    tokencache.Token
		leeway time.Duration
		want   bool
	}{
		{"empty", tokencache.Token{}, 0, false},
		{"no expiry", tokencache.Token{Value: "x"}, time.Hour, true},
		{"fresh", tokencache.Token{Value: "x", Expiry: time.Now().Add(time.Hour)}, time.Minute, true},
		{"within leeway", tokencache.Token{Value: "x", Expiry: time.Now().Add(30 * time.Second)}, time.Minute, false},
		{"expired", tokencache.Token{Value: "x", Expiry: time.Now().Add(-time.Second)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Valid(tt.leeway); got != tt.want {
				t.Errorf("Valid(%v) = %v, want %v", tt.leeway, got, tt.want)
			}
		})
	}
}
