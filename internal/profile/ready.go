package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"paykit/internal/backend"
	dErrors "paykit/pkg/domain-errors"
)

const (
	DefaultReadyTimeout  = 10 * time.Second
	DefaultReadyAttempts = 3
)

// ReadyFunc runs once a confirmed profile snapshot is available.
type ReadyFunc func(ctx context.Context, p *backend.ProfileSnapshot) error

// RunWhenProfileReady waits until the profile is confirmed and cached, then
// runs op. Each attempt waits up to the ready timeout and kicks a background
// sync; only timeouts are retried. When every attempt times out the caller
// gets a CodeProfileSyncTimeout error and the SDK keeps running. op's own
// error is returned unchanged.
func (m *Manager) RunWhenProfileReady(ctx context.Context, op ReadyFunc) error {
	var snapshot *backend.ProfileSnapshot
	attempt := 0

	wait := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, m.readyTimeout)
		defer cancel()

		m.kickSync(ctx)
		p, err := m.waitReady(actx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if m.logger != nil {
				m.logger.DebugContext(ctx, "profile not ready yet", "attempt", attempt)
			}
			return err
		}
		snapshot = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(m.readyAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(wait, policy); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.logger != nil {
			m.logger.WarnContext(ctx, "profile not ready, giving up", "attempts", attempt)
		}
		return dErrors.Wrap(err, dErrors.CodeProfileSyncTimeout,
			fmt.Sprintf("profile not ready after %d attempts", attempt))
	}
	return op(ctx, snapshot)
}

// waitReady blocks until a confirmed snapshot is cached or ctx ends. A
// ClearCache while waiting swaps the ready channel, so the loop re-arms on it.
func (m *Manager) waitReady(ctx context.Context) (*backend.ProfileSnapshot, error) {
	for {
		m.mu.Lock()
		ready := m.ready
		var p *backend.ProfileSnapshot
		if m.confirmedID != "" && m.profile != nil {
			p = m.profile.Clone()
		}
		m.mu.Unlock()

		if p != nil {
			return p, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// kickSync starts a sync in the background unless the profile is already
// confirmed. Failures are left to the next attempt.
func (m *Manager) kickSync(ctx context.Context) {
	m.mu.Lock()
	confirmed := m.confirmedID != "" && m.profile != nil
	m.mu.Unlock()
	if confirmed {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		_, _ = m.GetOrCreateProfile(bg)
	}()
}
