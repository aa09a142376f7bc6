//go:build integration
// +build integration

package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns miniredis plus a real standalone server when REDIS_ADDR
// is set, and a cluster when REDIS_CLUSTER_ADDRS is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: strings.Split(addrs, ",")})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}
	return modes
}

func TestRedisCompatSessionLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, done := mode.setup(t)
			defer done()
			ctx := context.Background()

			// Hash-tagged prefix keeps every key on one cluster slot.
			store := NewRedisStore(rdb, "{lifeplan-compat}:", DefaultPolicy())

			var ids []string
			for i := 0; i < 4; i++ {
				sess, _, err := store.Create(ctx, testAttrs("compat-user"))
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				ids = append(ids, sess.ID)
				time.Sleep(5 * time.Millisecond)
			}

			list, err := store.ListForUser(ctx, "compat-user")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("expected 3 sessions, got %d", len(list))
			}
			if _, err := store.Get(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
				t.Fatalf("oldest session should be evicted, got %v", err)
			}

			if ok, err := store.Touch(ctx, ids[3]); err != nil || !ok {
				t.Fatalf("touch: ok=%v err=%v", ok, err)
			}
			if ok, err := store.SetMFAVerified(ctx, ids[3], true); err != nil || !ok {
				t.Fatalf("set mfa: ok=%v err=%v", ok, err)
			}

			n, err := store.DestroyAllForUser(ctx, "compat-user")
			if err != nil {
				t.Fatalf("destroy all: %v", err)
			}
			if n != 3 {
				t.Fatalf("expected 3 destroyed, got %d", n)
			}
		})
	}
}
