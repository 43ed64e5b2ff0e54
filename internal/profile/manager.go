// Package profile reconciles the locally generated temporary profile id with
// the id the backend confirms, and keeps the cached profile snapshot fresh.
//
// Identity only moves forward: NoIdentity -> Temporary -> Confirmed. The only
// way back is ClearCache.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"paykit/internal/backend"
	"paykit/internal/kvstore"
	"paykit/internal/platform/metrics"
	"paykit/pkg/platform/sentinel"
)

const (
	// DefaultStaleAfter is how old a synced snapshot may get before the next
	// access refreshes it.
	DefaultStaleAfter = 2 * time.Hour

	syncKey = "sync"
)

// errSuperseded marks a sync whose result arrived after ClearCache.
var errSuperseded = fmt.Errorf("%w: profile sync superseded by cache clear", sentinel.ErrInvalidState)

// Manager owns the profile identity of one SDK instance.
type Manager struct {
	store    Store
	api      API
	composer Composer

	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	staleAfter    time.Duration
	readyTimeout  time.Duration
	readyAttempts int

	group singleflight.Group

	// persistMu serializes store writes with ClearCache so a cleared record is
	// never written back. Lock order is persistMu, then mu; store I/O never
	// happens under mu.
	persistMu sync.Mutex

	// mu guards the in-memory identity record.
	mu           sync.Mutex
	deviceID     string
	temporaryID  string
	confirmedID  string
	lastSyncedAt time.Time
	profile      *backend.ProfileSnapshot
	generation   uint64
	ready        chan struct{}
	readyClosed  bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock replaces time.Now, for staleness tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithReadiness sets the per-attempt wait and attempt count of RunWhenProfileReady.
func WithReadiness(timeout time.Duration, attempts int) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.readyTimeout = timeout
		}
		if attempts > 0 {
			m.readyAttempts = attempts
		}
	}
}

// NewManager loads any persisted identity from store.
func NewManager(ctx context.Context, store Store, api API, composer Composer, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:         store,
		api:           api,
		composer:      composer,
		now:           time.Now,
		staleAfter:    DefaultStaleAfter,
		readyTimeout:  DefaultReadyTimeout,
		readyAttempts: DefaultReadyAttempts,
		ready:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.load(ctx); err != nil {
		return nil, fmt.Errorf("load profile identity: %w", err)
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	deviceID, _, err := m.store.GetString(ctx, kvstore.KeyDeviceID)
	if err != nil {
		return err
	}
	confirmedID, _, err := m.store.GetString(ctx, kvstore.KeyProfileID)
	if err != nil {
		return err
	}
	syncedAt, hasSync, err := m.store.GetLong(ctx, kvstore.KeyProfileSyncedAt)
	if err != nil {
		return err
	}
	snapshot, hasProfile, err := kvstore.GetData[backend.ProfileSnapshot](ctx, m.store, kvstore.KeyProfile)
	if err != nil {
		// A corrupt snapshot is refetched rather than failing startup.
		if m.logger != nil {
			m.logger.WarnContext(ctx, "discarding unreadable cached profile", "error", err)
		}
		hasProfile = false
	}

	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := m.store.SaveString(ctx, kvstore.KeyDeviceID, deviceID); err != nil {
			return fmt.Errorf("persist device id: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceID = deviceID
	m.confirmedID = confirmedID
	if hasSync {
		m.lastSyncedAt = time.UnixMilli(syncedAt)
	}
	if hasProfile && confirmedID != "" {
		m.profile = &snapshot
		m.markReadyLocked()
	}
	return nil
}

// DeviceID returns the installation id. It is assigned when the manager is
// created and again by ClearCache, so reading it never touches the store.
func (m *Manager) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceID
}

// ProfileID returns the confirmed id when there is one, otherwise the temporary
// id (generated on first call). temporary reports which one it is.
func (m *Manager) ProfileID() (id string, temporary bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmedID != "" {
		return m.confirmedID, false
	}
	return m.temporaryIDLocked(), true
}

func (m *Manager) temporaryIDLocked() string {
	if m.temporaryID == "" {
		m.temporaryID = uuid.NewString()
	}
	return m.temporaryID
}

// IsTemporary reports whether the backend has not confirmed an id yet.
func (m *Manager) IsTemporary() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmedID == ""
}

// IsStale reports whether the last successful sync is older than the stale window.
func (m *Manager) IsStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isStaleLocked()
}

func (m *Manager) isStaleLocked() bool {
	if m.lastSyncedAt.IsZero() {
		return true
	}
	return m.now().Sub(m.lastSyncedAt) > m.staleAfter
}

// Profile returns the cached snapshot without touching the network.
func (m *Manager) Profile() (*backend.ProfileSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, false
	}
	return m.profile.Clone(), true
}

// freshLocked returns the cached snapshot when no sync is needed.
func (m *Manager) freshLocked() *backend.ProfileSnapshot {
	if m.confirmedID == "" || m.profile == nil || m.isStaleLocked() {
		return nil
	}
	return m.profile.Clone()
}

// GetOrCreateProfile returns the profile snapshot, creating the profile on the
// backend when only a temporary id exists and refreshing it when stale.
// Concurrent callers share one sync.
func (m *Manager) GetOrCreateProfile(ctx context.Context) (*backend.ProfileSnapshot, error) {
	m.mu.Lock()
	p := m.freshLocked()
	m.mu.Unlock()
	if p != nil {
		return p, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(syncKey, func() (any, error) {
		return m.sync(detached)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*backend.ProfileSnapshot).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) sync(ctx context.Context) (*backend.ProfileSnapshot, error) {
	m.mu.Lock()
	if p := m.freshLocked(); p != nil {
		m.mu.Unlock()
		return p, nil
	}
	gen := m.generation
	deviceID := m.deviceID
	confirmedID := m.confirmedID
	temporaryID := m.temporaryIDLocked()
	m.mu.Unlock()

	if confirmedID == "" {
		md := m.composer.Compose(ctx, deviceID)
		p, err := m.api.CreateProfile(ctx, backend.CreateProfileRequest{
			TemporaryID:  temporaryID,
			Installation: md,
		})
		if err == nil && p.ProfileID == "" {
			err = errors.New("backend returned a profile without an id")
		}
		m.recordSync(ctx, "create", err)
		if err != nil {
			return nil, err
		}
		return m.commit(ctx, gen, p)
	}

	p, err := m.api.FetchProfile(ctx, confirmedID, deviceID)
	m.recordSync(ctx, "fetch", err)
	if err != nil {
		return nil, err
	}
	return m.commit(ctx, gen, p)
}

// commit applies a sync result to the identity record and persists it.
func (m *Manager) commit(ctx context.Context, gen uint64, p *backend.ProfileSnapshot) (*backend.ProfileSnapshot, error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil, errSuperseded
	}

	snapshot := p.Clone()
	if m.confirmedID == "" {
		m.confirmedID = snapshot.ProfileID
		m.temporaryID = ""
	} else if snapshot.ProfileID != m.confirmedID {
		if m.logger != nil {
			m.logger.WarnContext(ctx, "backend returned a different profile id, keeping confirmed id",
				"confirmed_id", m.confirmedID,
				"returned_id", snapshot.ProfileID,
			)
		}
		snapshot.ProfileID = m.confirmedID
	}
	m.profile = snapshot
	m.lastSyncedAt = m.now()
	m.markReadyLocked()

	b := kvstore.NewBatch().
		String(kvstore.KeyProfileID, m.confirmedID).
		Data(kvstore.KeyProfile, snapshot).
		Long(kvstore.KeyProfileSyncedAt, m.lastSyncedAt.UnixMilli())
	m.mu.Unlock()

	m.persist(ctx, gen, b)
	return snapshot.Clone(), nil
}

// persist writes the identity record as one batch so a crash never leaves a
// confirmed id without its snapshot. The write is skipped when ClearCache ran
// since the record was taken. Failures are logged; the in-memory record stays
// authoritative for this process.
func (m *Manager) persist(ctx context.Context, gen uint64, b *kvstore.Batch) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	current := gen == m.generation
	m.mu.Unlock()
	if !current {
		return
	}
	if err := m.store.Commit(ctx, b); err != nil && m.logger != nil {
		m.logger.WarnContext(ctx, "failed to persist profile identity", "error", err)
	}
}

func (m *Manager) markReadyLocked() {
	if !m.readyClosed {
		close(m.ready)
		m.readyClosed = true
	}
}

func (m *Manager) recordSync(ctx context.Context, kind string, err error) {
	if m.metrics != nil {
		m.metrics.IncProfileSync(kind, err)
	}
	if m.logger == nil {
		return
	}
	if err != nil {
		m.logger.WarnContext(ctx, "profile sync failed", "kind", kind, "error", err)
		return
	}
	m.logger.InfoContext(ctx, "profile synced", "kind", kind)
}

// ClearCache forgets the identity and wipes the persisted store. The next
// access starts over with a new temporary id and a new device id. Syncs still
// in flight are discarded when they finish.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	deviceID := uuid.NewString()
	m.mu.Lock()
	m.generation++
	m.group.Forget(syncKey)
	m.deviceID = deviceID
	m.temporaryID = ""
	m.confirmedID = ""
	m.lastSyncedAt = time.Time{}
	m.profile = nil
	m.ready = make(chan struct{})
	m.readyClosed = false
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear profile store: %w", err)
	}
	if err := m.store.SaveString(ctx, kvstore.KeyDeviceID, deviceID); err != nil {
		return fmt.Errorf("persist device id: %w", err)
	}
	if m.logger != nil {
		m.logger.InfoContext(ctx, "profile cache cleared")
	}
	return nil
}
