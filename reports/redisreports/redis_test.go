package redisreports

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/reports/reportstest"
)

func TestRedisReportStore(t *testing.T) {
	probe, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis report store tests: %v", err)
		return
	}
	_ = probe.Close()

	reportstest.RunReportStoreTests(t, func(t *testing.T) reports.Store {
		cfg := Config{
			RedisAddr: os.Getenv("REDIS_ADDR"),
			KeyPrefix: fmt.Sprintf("ussd:test:%s:", uuid.NewString()),
		}
		s, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
