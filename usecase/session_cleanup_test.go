package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (e *countingExpirer) ExpireSessions(ctx context.Context) (int, error) {
	e.calls.Add(1)
	return 1, nil
}

func TestSessionCleanupService(t *testing.T) {
	expirer := &countingExpirer{}
	svc := NewSessionCleanupService(expirer, 5*time.Millisecond, zaptest.NewLogger(t))
	svc.Start()

	deadline := time.Now().Add(time.Second)
	for expirer.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup never ran")
		}
		time.Sleep(time.Millisecond)
	}

	svc.Stop()
	after := expirer.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if expirer.calls.Load() != after {
		t.Error("cleanup kept running after stop")
	}
}
