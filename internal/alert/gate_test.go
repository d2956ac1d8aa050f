package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

type recordingNotifier struct {
	alerts []*domain.Alert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func testGate(notifier Notifier) *Gate {
	return New(Config{
		InfoCooldown:     30 * time.Minute,
		CriticalCooldown: 30 * time.Minute,
	}, notifier, nil)
}

func TestGateCooldownSuppression(t *testing.T) {
	notifier := &recordingNotifier{}
	gate := testGate(notifier)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return base }

	st := domain.NewWatchdogStatus("bridge-a")
	st.State = domain.StateCritical
	ctx := context.Background()

	if !gate.MaybeNotify(ctx, domain.SeverityCritical, "remediation failed", st) {
		t.Fatal("first alert should dispatch")
	}

	// A second failure 10 minutes later lands inside the 30m cooldown.
	gate.now = func() time.Time { return base.Add(10 * time.Minute) }
	if gate.MaybeNotify(ctx, domain.SeverityCritical, "remediation failed", st) {
		t.Fatal("second alert within cooldown should be suppressed")
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected exactly one dispatched alert, got %d", len(notifier.alerts))
	}

	// Once the window passes the next alert goes out.
	gate.now = func() time.Time { return base.Add(31 * time.Minute) }
	if !gate.MaybeNotify(ctx, domain.SeverityCritical, "still critical", st) {
		t.Fatal("alert after cooldown should dispatch")
	}
	if len(notifier.alerts) != 2 {
		t.Fatalf("expected two dispatched alerts, got %d", len(notifier.alerts))
	}
}

func TestGateSeverityIndependence(t *testing.T) {
	notifier := &recordingNotifier{}
	gate := testGate(notifier)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return base }

	st := domain.NewWatchdogStatus("bridge-a")
	ctx := context.Background()

	if !gate.MaybeNotify(ctx, domain.SeverityCritical, "bridge down", st) {
		t.Fatal("critical alert should dispatch")
	}

	// The critical cooldown must not suppress a recovery notice.
	gate.now = func() time.Time { return base.Add(time.Minute) }
	if !gate.MaybeNotify(ctx, domain.SeverityInfo, "bridge recovered", st) {
		t.Fatal("info alert should dispatch despite recent critical")
	}

	if len(notifier.alerts) != 2 {
		t.Fatalf("expected two alerts, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Severity != domain.SeverityCritical ||
		notifier.alerts[1].Severity != domain.SeverityInfo {
		t.Errorf("unexpected severities: %s, %s",
			notifier.alerts[0].Severity, notifier.alerts[1].Severity)
	}
}

func TestGateStampsStatusRecord(t *testing.T) {
	gate := testGate(&recordingNotifier{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return base }

	st := domain.NewWatchdogStatus("bridge-a")
	gate.MaybeNotify(context.Background(), domain.SeverityCritical, "down", st)

	at, ok := st.LastAlert(domain.SeverityCritical)
	if !ok || !at.Equal(base) {
		t.Fatalf("expected alert stamp %v, got %v (found=%v)", base, at, ok)
	}

	// A suppressed attempt must not move the stamp.
	gate.now = func() time.Time { return base.Add(5 * time.Minute) }
	gate.MaybeNotify(context.Background(), domain.SeverityCritical, "down", st)

	at, _ = st.LastAlert(domain.SeverityCritical)
	if !at.Equal(base) {
		t.Errorf("suppressed attempt moved the stamp to %v", at)
	}
}

func TestGateDeliveryFailureStartsCooldown(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("webhook unreachable")}
	gate := testGate(notifier)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return base }

	st := domain.NewWatchdogStatus("bridge-a")
	ctx := context.Background()

	if gate.MaybeNotify(ctx, domain.SeverityCritical, "down", st) {
		t.Fatal("failed delivery should not report as dispatched")
	}

	// The attempt still starts the cooldown.
	gate.now = func() time.Time { return base.Add(time.Minute) }
	gate.MaybeNotify(ctx, domain.SeverityCritical, "down", st)
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected a single delivery attempt, got %d", len(notifier.alerts))
	}
}

func TestGateAlertContents(t *testing.T) {
	notifier := &recordingNotifier{}
	gate := testGate(notifier)

	st := domain.NewWatchdogStatus("fundsync-prod")
	st.State = domain.StateCritical
	st.ConsecutiveFailures = 4

	gate.MaybeNotify(context.Background(), domain.SeverityCritical, "remediation did not verify", st)

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.alerts))
	}
	a := notifier.alerts[0]
	if a.ID == "" {
		t.Error("expected a generated alert id")
	}
	if a.TargetID != "fundsync-prod" || a.State != domain.StateCritical {
		t.Errorf("unexpected alert target/state: %s/%s", a.TargetID, a.State)
	}
	if a.ConsecutiveFailures != 4 {
		t.Errorf("expected 4 consecutive failures in alert, got %d", a.ConsecutiveFailures)
	}
	if a.Message != "remediation did not verify" {
		t.Errorf("unexpected message: %s", a.Message)
	}
}
