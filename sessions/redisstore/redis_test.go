package redisstore

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/sessions/storetest"
)

func TestRedisStore(t *testing.T) {
	// Quick availability check to allow graceful skip in environments without Redis.
	probe, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis store tests: %v", err)
		return
	}
	_ = probe.Close()

	storetest.RunStoreTests(t, func(t *testing.T, ttl time.Duration) sessions.Store {
		cfg := Config{
			RedisAddr: os.Getenv("REDIS_ADDR"),
			// Unique prefix per subtest keeps runs isolated on a shared server.
			KeyPrefix: fmt.Sprintf("ussd:test:%s:", uuid.NewString()),
			TTL:       ttl,
		}
		s, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
