package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
)

type fakeOverdueStore struct {
	mu     sync.Mutex
	passes []model.Pass
	calls  int
}

func (f *fakeOverdueStore) ListOverduePasses(context.Context, time.Time) ([]model.Pass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]model.Pass, len(f.passes))
	copy(out, f.passes)
	return out, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *recordingAudit) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func TestOverdueSweepAuditsOnce(t *testing.T) {
	store := &fakeOverdueStore{passes: []model.Pass{{
		ID:         uuid.New(),
		StudentID:  "stu-1",
		CheckoutAt: time.Now().UTC().Add(-time.Hour),
		Status:     model.StatusActive,
	}}}
	sink := &recordingAudit{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartOverdueSweep(ctx, config.Config{
		OverdueEnabled:  true,
		OverdueAfter:    time.Minute,
		OverdueInterval: 5 * time.Millisecond,
	}, store, audit.NewTrail(sink))

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		calls := store.calls
		store.mu.Unlock()
		if calls >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweep never ran three times")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Several sweeps saw the same pass; only the first audits it.
	if got := sink.count(); got != 1 {
		t.Fatalf("audit entries = %d, want 1", got)
	}
}

func TestOverdueSweepDisabled(t *testing.T) {
	store := &fakeOverdueStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartOverdueSweep(ctx, config.Config{
		OverdueEnabled:  false,
		OverdueInterval: time.Millisecond,
	}, store, audit.NewTrail(nil))

	time.Sleep(20 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.calls != 0 {
		t.Fatalf("calls = %d, want 0 when disabled", store.calls)
	}
}
