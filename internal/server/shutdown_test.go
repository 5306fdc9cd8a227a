package server

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestDefaultShutdownConfig(t *testing.T) {
	cfg := DefaultShutdownConfig()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 || cfg.Signals[0] != syscall.SIGTERM {
		t.Errorf("signals = %v", cfg.Signals)
	}
}

func TestNewShutdownHandler_ZeroTimeout(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{})
	if h.timeout != 30*time.Second {
		t.Errorf("timeout = %v", h.timeout)
	}
}

func TestShutdownHandler_RunsHooksInPriorityOrder(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})

	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	h.Register(StoreShutdownHook(record("store")))
	h.Register(HTTPServerShutdownHook("api", record("api")))
	h.Register(IndexShutdownHook(func() error { return record("index")(context.Background()) }))
	h.Register(TemporalWorkerShutdownHook(func() { order = append(order, "worker") }))
	h.RegisterHook("same-as-store", 90, record("same-as-store"))

	h.Start()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}

	want := []string{"api", "worker", "index", "store", "same-as-store"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v", h.Err())
	}
}

func TestShutdownHandler_ContinuesPastFailingHook(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second})
	boom := errors.New("mongo disconnect")
	closed := false
	h.Register(StoreShutdownHook(func(context.Context) error { return boom }))
	h.Register(AuditLoggerShutdownHook(func() error {
		closed = true
		return nil
	}))

	h.Start()
	h.Shutdown()
	h.Wait()

	if !closed {
		t.Error("audit logger hook should still run")
	}
	if !errors.Is(h.Err(), boom) {
		t.Errorf("Err() = %v", h.Err())
	}
}

func TestShutdownHandler_ShutdownBeforeStart(t *testing.T) {
	h := NewShutdownHandler(nil)
	h.Shutdown()
	select {
	case <-h.ShutdownCh():
		t.Fatal("shutdown must not begin before Start")
	default:
	}
}

func TestShutdownHandler_DoubleStartAndShutdown(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second})
	h.Start()
	h.Start()
	h.Shutdown()
	h.Shutdown()
	if !h.WaitWithTimeout(time.Second) {
		t.Fatal("shutdown timed out")
	}
}

func TestShutdownHandler_WaitWithTimeout_NotStarted(t *testing.T) {
	h := NewShutdownHandler(nil)
	if h.WaitWithTimeout(10 * time.Millisecond) {
		t.Error("expected timeout")
	}
}

func TestHookPriorities(t *testing.T) {
	noop := func(context.Context) error { return nil }
	hooks := []ShutdownHook{
		HTTPServerShutdownHook("api", noop),
		TemporalWorkerShutdownHook(func() {}),
		IndexShutdownHook(func() error { return nil }),
		TracingShutdownHook(noop),
		StoreShutdownHook(noop),
		AuditLoggerShutdownHook(func() error { return nil }),
	}
	for i := 1; i < len(hooks); i++ {
		if hooks[i-1].Priority >= hooks[i].Priority {
			t.Errorf("%s (%d) should run before %s (%d)",
				hooks[i-1].Name, hooks[i-1].Priority, hooks[i].Name, hooks[i].Priority)
		}
	}
}

func TestGracefulServer_Lifecycle(t *testing.T) {
	g := NewGracefulServer(&HealthConfig{Version: "test"}, &ShutdownConfig{Timeout: time.Second})
	stopped := false
	g.RegisterHook(HTTPServerShutdownHook("api", func(context.Context) error {
		stopped = true
		return nil
	}))

	g.Start("127.0.0.1:0")
	if w, _ := get(t, g.Health.Handler(), "/ready"); w.Code != http.StatusOK {
		t.Errorf("/ready after Start = %d", w.Code)
	}

	g.Shutdown.Shutdown()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !stopped {
		t.Error("api hook not called")
	}
	if w, _ := get(t, g.Health.Handler(), "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready after shutdown = %d", w.Code)
	}
}
