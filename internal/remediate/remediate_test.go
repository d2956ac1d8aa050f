package remediate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/memory"
)

// =============================================================================
// Stubs
// =============================================================================

type stubTrigger struct {
	calls int32
	err   error
}

func (t *stubTrigger) Fire(ctx context.Context, targetID, reason string) error {
	atomic.AddInt32(&t.calls, 1)
	return t.err
}

type stubProber struct {
	healthy bool
}

func (p *stubProber) Probe(ctx context.Context) *domain.ProbeResult {
	return &domain.ProbeResult{
		TargetID: "bridge-a",
		ProbedAt: time.Now(),
		Healthy:  p.healthy,
	}
}

func testRemediator(trigger *stubTrigger, prober *stubProber) (*Remediator, *memory.StatusRepo) {
	repo := memory.NewStatusRepo(memory.NewMemoryStorage())
	r := New(Config{
		TargetID:        "bridge-a",
		HealingCooldown: 5 * time.Minute,
		SettleDelay:     10 * time.Millisecond,
	}, trigger, prober, repo, nil)
	return r, repo
}

// =============================================================================
// Tests
// =============================================================================

func TestRemediateTriggersAndVerifies(t *testing.T) {
	trigger := &stubTrigger{}
	r, repo := testRemediator(trigger, &stubProber{healthy: true})

	st := domain.NewWatchdogStatus("bridge-a")
	st.State = domain.StateHealing

	out, err := r.Remediate(context.Background(), st, "3 consecutive probe failures")
	if err != nil {
		t.Fatalf("remediate failed: %v", err)
	}
	if out.Skipped || !out.Triggered || !out.Verified {
		t.Errorf("expected triggered+verified outcome, got %+v", out)
	}
	if out.Recheck == nil || !out.Recheck.Healthy {
		t.Error("expected a healthy recheck result")
	}
	if atomic.LoadInt32(&trigger.calls) != 1 {
		t.Errorf("expected one trigger call, got %d", trigger.calls)
	}

	// The attempt stamp was persisted before the settle wait.
	saved, err := repo.Get(context.Background(), "bridge-a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if saved.LastHealingAttemptAt.IsZero() {
		t.Error("expected persisted healing attempt stamp")
	}
	if saved.HealingAttemptsTotal != 1 {
		t.Errorf("expected 1 healing attempt, got %d", saved.HealingAttemptsTotal)
	}
}

func TestRemediateDeclinedByCooldown(t *testing.T) {
	trigger := &stubTrigger{}
	r, _ := testRemediator(trigger, &stubProber{healthy: true})

	st := domain.NewWatchdogStatus("bridge-a")
	st.LastHealingAttemptAt = time.Now().Add(-2 * time.Minute)
	st.HealingAttemptsTotal = 1

	out, err := r.Remediate(context.Background(), st, "manual")
	if err != nil {
		t.Fatalf("remediate failed: %v", err)
	}
	if !out.Skipped {
		t.Fatalf("expected skipped outcome, got %+v", out)
	}
	if atomic.LoadInt32(&trigger.calls) != 0 {
		t.Errorf("declined remediation must not fire the trigger, got %d calls", trigger.calls)
	}
	if st.HealingAttemptsTotal != 1 {
		t.Errorf("declined remediation must not count as an attempt, got %d", st.HealingAttemptsTotal)
	}
}

func TestRemediateIdempotentWithinCooldown(t *testing.T) {
	trigger := &stubTrigger{}
	r, _ := testRemediator(trigger, &stubProber{healthy: true})

	st := domain.NewWatchdogStatus("bridge-a")
	ctx := context.Background()

	if _, err := r.Remediate(ctx, st, "manual"); err != nil {
		t.Fatalf("first remediate failed: %v", err)
	}
	out, err := r.Remediate(ctx, st, "manual again")
	if err != nil {
		t.Fatalf("second remediate failed: %v", err)
	}

	if !out.Skipped {
		t.Error("second attempt within cooldown should be skipped")
	}
	if atomic.LoadInt32(&trigger.calls) != 1 {
		t.Errorf("expected exactly one trigger call, got %d", trigger.calls)
	}
}

func TestRemediateUnverifiedRecheck(t *testing.T) {
	trigger := &stubTrigger{}
	r, _ := testRemediator(trigger, &stubProber{healthy: false})

	st := domain.NewWatchdogStatus("bridge-a")
	out, err := r.Remediate(context.Background(), st, "threshold reached")
	if err != nil {
		t.Fatalf("remediate failed: %v", err)
	}
	if !out.Triggered || out.Verified {
		t.Errorf("expected triggered but unverified outcome, got %+v", out)
	}
}

func TestRemediateTriggerRejection(t *testing.T) {
	trigger := &stubTrigger{err: &TriggerError{Target: "bridge-a", Status: 503}}
	r, _ := testRemediator(trigger, &stubProber{healthy: true})

	st := domain.NewWatchdogStatus("bridge-a")
	out, err := r.Remediate(context.Background(), st, "threshold reached")
	if err == nil {
		t.Fatal("expected error for rejected trigger")
	}

	var trErr *TriggerError
	if !errors.As(err, &trErr) || trErr.Status != 503 {
		t.Errorf("expected TriggerError with status 503, got %v", err)
	}
	if out.Triggered || out.Verified {
		t.Errorf("expected zero outcome on rejection, got %+v", out)
	}
	// The attempt still consumed the cooldown window.
	if st.LastHealingAttemptAt.IsZero() {
		t.Error("expected attempt stamp even on trigger rejection")
	}
}

func TestRemediateRetryAfterCooldownElapsed(t *testing.T) {
	trigger := &stubTrigger{}
	r, _ := testRemediator(trigger, &stubProber{healthy: true})

	st := domain.NewWatchdogStatus("bridge-a")
	st.LastHealingAttemptAt = time.Now().Add(-10 * time.Minute)
	st.HealingAttemptsTotal = 1

	out, err := r.Remediate(context.Background(), st, "still failing")
	if err != nil {
		t.Fatalf("remediate failed: %v", err)
	}
	if out.Skipped {
		t.Fatal("attempt after cooldown elapsed should not be skipped")
	}
	if st.HealingAttemptsTotal != 2 {
		t.Errorf("expected 2 attempts total, got %d", st.HealingAttemptsTotal)
	}
}
