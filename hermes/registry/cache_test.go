package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/rest"
)

type fakeSource struct {
	instances []rest.Instance
	err       error
	calls     atomic.Int32
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]rest.Instance, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.instances, nil
}

func instanceOf(app, host string, status rest.Status) rest.Instance {
	return rest.Instance{
		HostName: host,
		App:      app,
		IPAddr:   "127.0.0.1",
		Status:   status,
		Port:     rest.NewPort(8080, true),
	}
}

func TestRefreshGroupsByApp(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusUp),
		instanceOf("AUTH", "auth-2", rest.StatusUp),
		instanceOf("GATEWAY", "gw-1", rest.StatusUp),
	}}
	cache := NewCache(source, time.Second, true)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	apps := cache.Apps()
	if len(apps) != 2 || apps[0] != "AUTH" || apps[1] != "GATEWAY" {
		t.Errorf("Unexpected apps %v", apps)
	}

	snapshot := cache.Snapshot()
	if len(snapshot["AUTH"]) != 2 {
		t.Errorf("Expected 2 AUTH instances, got %d", len(snapshot["AUTH"]))
	}
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusUp),
	}}
	cache := NewCache(source, time.Second, true)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	source.err = fmt.Errorf("server down")
	if err := cache.Refresh(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}

	if cache.Lookup("AUTH") == nil {
		t.Error("Expected previous snapshot to survive a failed refresh")
	}
}

func TestLookupFiltersDownInstances(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusDown),
		instanceOf("AUTH", "auth-2", rest.StatusUp),
		instanceOf("AUTH", "auth-3", rest.StatusOutOfService),
	}}
	cache := NewCache(source, time.Second, true)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Random pick, so exercise it repeatedly.
	for i := 0; i < 20; i++ {
		inst := cache.Lookup("AUTH")
		if inst == nil {
			t.Fatal("Expected an instance, got nil")
		}
		if inst.HostName != "auth-2" {
			t.Fatalf("Expected only UP instance auth-2, got %q", inst.HostName)
		}
	}
}

func TestLookupAllDown(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusDown),
	}}
	cache := NewCache(source, time.Second, true)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if inst := cache.Lookup("AUTH"); inst != nil {
		t.Errorf("Expected nil, got %+v", inst)
	}
}

func TestLookupWithoutUpFilter(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusDown),
	}}
	cache := NewCache(source, time.Second, false)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if inst := cache.Lookup("AUTH"); inst == nil {
		t.Error("Expected DOWN instance to be returned when filtering is off")
	}
}

func TestLookupUnknownApp(t *testing.T) {
	cache := NewCache(&fakeSource{}, time.Second, true)
	if inst := cache.Lookup("NOPE"); inst != nil {
		t.Errorf("Expected nil, got %+v", inst)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &fakeSource{instances: []rest.Instance{
		instanceOf("AUTH", "auth-1", rest.StatusUp),
	}}
	cache := NewCache(source, 5*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.Run(ctx)
		close(done)
	}()

	// Wait for the initial refresh plus at least one tick.
	deadline := time.After(time.Second)
	for source.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for periodic refresh")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
