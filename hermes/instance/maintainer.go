// Package instance keeps one instance registered with Eureka: it
// establishes the lease, renews it on an interval and tears it down on
// shutdown.
package instance

import (
	"context"
	"errors"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
	"github.com/SoftKiwiGames/hermes/hermes/rest"
	"github.com/cenkalti/backoff/v4"
)

// API is the subset of the REST client the maintainer needs.
type API interface {
	Register(ctx context.Context, app string, inst *rest.Instance) error
	Heartbeat(ctx context.Context, app, instanceID string) error
	Deregister(ctx context.Context, app, instanceID string) error
	SetStatus(ctx context.Context, app, instanceID string, status rest.Status) error
}

type Maintainer struct {
	api        API
	inst       *rest.Instance
	interval   time.Duration
	retryDelay time.Duration
}

func NewMaintainer(api API, inst *rest.Instance, interval, retryDelay time.Duration) *Maintainer {
	return &Maintainer{
		api:        api,
		inst:       inst,
		interval:   interval,
		retryDelay: retryDelay,
	}
}

// Run registers the instance, marks it UP and renews the lease until the
// context is cancelled, then deregisters. Heartbeat failures never stop the
// loop; the maintainer re-registers and carries on.
func (m *Maintainer) Run(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)

	if err := m.register(ctx); err != nil {
		return err
	}
	log.Info("registered with eureka", "app", m.inst.App, "instance", m.inst.ID())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.deregister()
			return nil
		case <-ticker.C:
			err := m.api.Heartbeat(ctx, m.inst.App, m.inst.ID())
			switch {
			case err == nil:
				log.Debug("heartbeat sent", "instance", m.inst.ID())
			case errors.Is(err, context.Canceled):
				m.deregister()
				return nil
			case errors.Is(err, rest.ErrInstanceGone):
				log.Warn("instance not registered, re-registering")
				m.reregister(ctx)
			default:
				log.Error("failed to send heartbeat, re-registering", "error", err)
				m.reregister(ctx)
			}
		}
	}
}

// registerPolicy never gives up on its own; only context cancellation
// stops the initial registration.
func (m *Maintainer) registerPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	if m.retryDelay > 0 {
		policy.InitialInterval = m.retryDelay
	}
	policy.MaxElapsedTime = 0
	return policy
}

// register retries until the lease is established or the context ends.
func (m *Maintainer) register(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)

	// Registration is idempotent, so the UP status update shares the
	// retry attempt.
	attempt := func() error {
		if err := m.api.Register(ctx, m.inst.App, m.inst); err != nil {
			log.Error("failed to register app", "error", err)
			return err
		}
		if err := m.api.SetStatus(ctx, m.inst.App, m.inst.ID(), rest.StatusUp); err != nil {
			log.Error("failed to set status UP", "error", err)
			return err
		}
		return nil
	}
	return backoff.Retry(attempt, backoff.WithContext(m.registerPolicy(), ctx))
}

// reregister is the in-loop recovery path. Failures are logged only; the
// next heartbeat tick tries again.
func (m *Maintainer) reregister(ctx context.Context) {
	log := ctxlog.FromContext(ctx)

	if err := m.api.Register(ctx, m.inst.App, m.inst); err != nil {
		log.Error("failed to re-register app", "error", err)
		return
	}
	if err := m.api.SetStatus(ctx, m.inst.App, m.inst.ID(), rest.StatusUp); err != nil {
		log.Error("failed to set status UP", "error", err)
		return
	}
	log.Info("re-registered with eureka", "instance", m.inst.ID())
}

// deregister runs on shutdown, best effort, on a fresh context because the
// run context is already cancelled.
func (m *Maintainer) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.api.Deregister(ctx, m.inst.App, m.inst.ID()); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to deregister", "error", err)
	}
}
