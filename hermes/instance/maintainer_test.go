package instance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/rest"
	"github.com/cenkalti/backoff/v4"
)

type fakeAPI struct {
	mu            sync.Mutex
	calls         []string
	registerErrs  int
	heartbeatErrs []error
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) Register(ctx context.Context, app string, inst *rest.Instance) error {
	f.record("register")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErrs > 0 {
		f.registerErrs--
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, app, instanceID string) error {
	f.record("heartbeat")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heartbeatErrs) > 0 {
		err := f.heartbeatErrs[0]
		f.heartbeatErrs = f.heartbeatErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) Deregister(ctx context.Context, app, instanceID string) error {
	f.record("deregister")
	return nil
}

func (f *fakeAPI) SetStatus(ctx context.Context, app, instanceID string, status rest.Status) error {
	f.record("status:" + string(status))
	return nil
}

func testInstance() *rest.Instance {
	return &rest.Instance{
		HostName:       "localhost",
		App:            "MY-SERVICE",
		IPAddr:         "127.0.0.1",
		Status:         rest.StatusStarting,
		Port:           rest.NewPort(8080, true),
		DataCenterInfo: rest.DefaultDataCenter(),
	}
}

func runUntil(t *testing.T, m *Maintainer, api *fakeAPI, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("Timed out, calls: %v", api.recorded())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRunRegistersAndHeartbeats(t *testing.T) {
	api := &fakeAPI{}
	m := NewMaintainer(api, testInstance(), 2*time.Millisecond, time.Millisecond)

	runUntil(t, m, api, func() bool { return api.count("heartbeat") >= 2 })

	calls := api.recorded()
	if calls[0] != "register" || calls[1] != "status:UP" {
		t.Errorf("Expected register then status UP first, got %v", calls[:2])
	}
	if api.count("deregister") != 1 {
		t.Errorf("Expected exactly one deregister, got %d", api.count("deregister"))
	}
}

func TestRunRetriesRegistration(t *testing.T) {
	api := &fakeAPI{registerErrs: 2}
	m := NewMaintainer(api, testInstance(), 2*time.Millisecond, time.Millisecond)

	runUntil(t, m, api, func() bool { return api.count("heartbeat") >= 1 })

	if api.count("register") < 3 {
		t.Errorf("Expected at least 3 register attempts, got %d", api.count("register"))
	}
}

func TestRunReregistersWhenInstanceGone(t *testing.T) {
	api := &fakeAPI{heartbeatErrs: []error{rest.ErrInstanceGone}}
	m := NewMaintainer(api, testInstance(), 2*time.Millisecond, time.Millisecond)

	runUntil(t, m, api, func() bool {
		return api.count("register") >= 2 && api.count("heartbeat") >= 2
	})

	if api.count("status:UP") < 2 {
		t.Errorf("Expected status UP reasserted after re-register, got %d", api.count("status:UP"))
	}
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func TestRegistrationRetriesPastElapsedBudget(t *testing.T) {
	m := NewMaintainer(&fakeAPI{}, testInstance(), time.Second, time.Millisecond)

	policy := m.registerPolicy()
	clock := &fakeClock{now: time.Now()}
	policy.Clock = clock
	policy.Reset()

	// A day past the library's default 15 minute elapsed budget.
	clock.now = clock.now.Add(24 * time.Hour)
	if policy.NextBackOff() == backoff.Stop {
		t.Fatal("Expected registration to keep retrying while the server is down")
	}
}

func TestRunReregistersOnHeartbeatFailure(t *testing.T) {
	api := &fakeAPI{heartbeatErrs: []error{fmt.Errorf("connection reset")}}
	m := NewMaintainer(api, testInstance(), 2*time.Millisecond, time.Millisecond)

	runUntil(t, m, api, func() bool { return api.count("register") >= 2 })
}
