package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerops/bridgewatch/internal/control"
	"github.com/ledgerops/bridgewatch/internal/core/config"
	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

// === Fakes ===

// fakeBridge stands in for the monitored sync process. Flipping up simulates
// the bridge dying and coming back.
type fakeBridge struct {
	up  atomic.Bool
	srv *httptest.Server
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	b := &fakeBridge{}
	b.up.Store(true)
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if b.up.Load() {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"down"}`))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

// fakeAutomation stands in for the remediation backend. While working, a
// trigger request restarts the bridge.
type fakeAutomation struct {
	mu       sync.Mutex
	requests []map[string]any
	working  atomic.Bool
	bridge   *fakeBridge
	srv      *httptest.Server
}

func newFakeAutomation(t *testing.T, bridge *fakeBridge) *fakeAutomation {
	t.Helper()
	a := &fakeAutomation{bridge: bridge}
	a.working.Store(true)
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.mu.Lock()
		a.requests = append(a.requests, req)
		a.mu.Unlock()

		if !a.working.Load() {
			http.Error(w, "automation backend offline", http.StatusInternalServerError)
			return
		}
		a.bridge.up.Store(true)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAutomation) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *fakeAutomation) lastRequest() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return nil
	}
	return a.requests[len(a.requests)-1]
}

// fakeWebhook records operator notifications.
type fakeWebhook struct {
	mu     sync.Mutex
	alerts []map[string]any
	srv    *httptest.Server
}

func newFakeWebhook(t *testing.T) *fakeWebhook {
	t.Helper()
	wh := &fakeWebhook{}
	wh.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		wh.mu.Lock()
		wh.alerts = append(wh.alerts, payload)
		wh.mu.Unlock()
	}))
	t.Cleanup(wh.srv.Close)
	return wh
}

func (wh *fakeWebhook) messages(severity string) []string {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	var out []string
	for _, a := range wh.alerts {
		if a["severity"] == severity {
			msg, _ := a["message"].(string)
			out = append(out, msg)
		}
	}
	return out
}

// === Helpers ===

func waitFor(t *testing.T, timeout time.Duration, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func e2eConfig(bridge *fakeBridge, automation *fakeAutomation, webhook *fakeWebhook, healingCooldown time.Duration) config.AppConfig {
	return config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Alerts: config.AlertConfig{
			WebhookURL:       webhook.srv.URL,
			InfoCooldown:     30 * time.Minute,
			CriticalCooldown: 30 * time.Minute,
		},
		Targets: []config.TargetConfig{
			{
				ID:               "bridge-e2e",
				HealthURL:        bridge.srv.URL + "/health",
				ProbeInterval:    25 * time.Millisecond,
				ProbeTimeout:     time.Second,
				FailureThreshold: 2,
				HealingCooldown:  healingCooldown,
				SettleDelay:      10 * time.Millisecond,
				Remediation: config.RemediationConfig{
					URL:       automation.srv.URL,
					Action:    "restart-bridge",
					AuthToken: "e2e-token",
				},
			},
		},
	}
}

func startApp(t *testing.T, cfg config.AppConfig) *control.App {
	t.Helper()
	app, err := control.NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	})
	return app
}

func targetState(app *control.App) domain.State {
	loop, ok := app.Loop("bridge-e2e")
	if !ok {
		return ""
	}
	return loop.Status().Status.State
}

// === Tests ===

func TestWatchdogHealsFailedBridge(t *testing.T) {
	bridge := newFakeBridge(t)
	automation := newFakeAutomation(t, bridge)
	webhook := newFakeWebhook(t)

	app := startApp(t, e2eConfig(bridge, automation, webhook, time.Hour))

	waitFor(t, 3*time.Second, "initial healthy state", func() bool {
		return targetState(app) == domain.StateHealthy
	})

	// Kill the bridge. The loop should count failures to the threshold,
	// trigger the automation and verify the restart.
	bridge.up.Store(false)

	waitFor(t, 5*time.Second, "remediation trigger", func() bool {
		return automation.count() >= 1
	})
	waitFor(t, 5*time.Second, "recovery to healthy", func() bool {
		return targetState(app) == domain.StateHealthy
	})

	req := automation.lastRequest()
	if req["action"] != "restart-bridge" {
		t.Errorf("expected action restart-bridge, got %v", req["action"])
	}
	if req["target"] != "bridge-e2e" {
		t.Errorf("expected target bridge-e2e, got %v", req["target"])
	}
	if req["request_id"] == "" || req["request_id"] == nil {
		t.Error("expected a request id")
	}

	loop, _ := app.Loop("bridge-e2e")
	snap := loop.Status()
	if snap.Status.ConsecutiveFailures != 0 {
		t.Errorf("expected failure count reset, got %d", snap.Status.ConsecutiveFailures)
	}
	if snap.Status.HealingAttemptsTotal != 1 {
		t.Errorf("expected 1 healing attempt, got %d", snap.Status.HealingAttemptsTotal)
	}

	if got := webhook.messages("critical"); len(got) != 0 {
		t.Errorf("expected no critical alerts, got %v", got)
	}
	info := webhook.messages("info")
	if len(info) != 1 {
		t.Fatalf("expected exactly 1 info alert, got %v", info)
	}
	if info[0] != "bridge recovered after automated remediation" {
		t.Errorf("unexpected recovery message: %q", info[0])
	}
}

func TestWatchdogEscalatesWhenRemediationFails(t *testing.T) {
	bridge := newFakeBridge(t)
	automation := newFakeAutomation(t, bridge)
	webhook := newFakeWebhook(t)

	app := startApp(t, e2eConfig(bridge, automation, webhook, 60*time.Millisecond))

	waitFor(t, 3*time.Second, "initial healthy state", func() bool {
		return targetState(app) == domain.StateHealthy
	})

	// Bridge dies and the automation backend is down too.
	automation.working.Store(false)
	bridge.up.Store(false)

	waitFor(t, 5*time.Second, "critical state", func() bool {
		return targetState(app) == domain.StateCritical
	})
	if automation.count() < 1 {
		t.Fatalf("expected at least 1 trigger attempt, got %d", automation.count())
	}

	// The automation backend comes back; the next attempt after the healing
	// cooldown should restart the bridge and verify.
	automation.working.Store(true)

	waitFor(t, 5*time.Second, "recovery after automation restored", func() bool {
		return targetState(app) == domain.StateHealthy
	})

	// Repeated critical cycles share one gated notification.
	critical := webhook.messages("critical")
	if len(critical) != 1 {
		t.Fatalf("expected exactly 1 critical alert, got %v", critical)
	}

	info := webhook.messages("info")
	if len(info) != 1 || info[0] != "bridge recovered after automated remediation" {
		t.Fatalf("expected a single recovery alert, got %v", info)
	}

	loop, _ := app.Loop("bridge-e2e")
	if got := loop.Status().Status.HealingAttemptsTotal; got < 2 {
		t.Errorf("expected at least 2 healing attempts, got %d", got)
	}
}
