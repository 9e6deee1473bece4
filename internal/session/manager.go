package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/observability"
	"github.com/jqzhao7/SUPERSONIC/internal/space"
)

// ArchiveFunc receives a closed session's decision trace. Archival is
// best-effort; implementations log their own failures.
type ArchiveFunc func(ctx context.Context, sessionID string, trace []string)

type Options struct {
	StepDeadline time.Duration
	CancelGrace  time.Duration
	// MaxSessions caps live sessions; 0 means unlimited.
	MaxSessions int
	// IdleTTL closes sessions with no activity for this long; 0 disables
	// the reaper.
	IdleTTL time.Duration
	Archive ArchiveFunc
}

// Manager owns every live session. Sessions are created by Init, addressed
// by id, and destroyed by Close or the idle reaper. The manager lock guards
// only the table; per-session work happens under each session's own lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	reg      *backend.Registry
	sp       *space.Space
	exec     *Executor
	opts     Options
	seq      uint64
	stopReap chan struct{}
	reapOnce sync.Once
}

func NewManager(reg *backend.Registry, sp *space.Space, opts Options) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		reg:      reg,
		sp:       sp,
		exec:     NewExecutor(opts.StepDeadline, opts.CancelGrace),
		opts:     opts,
		stopReap: make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		go m.reapLoop()
	}
	return m
}

// Init allocates a new session for the given algorithm family and runs its
// engine initialization. The returned session is Ready.
func (m *Manager) Init(ctx context.Context, algorithmID int32, p backend.InitParams) (*Session, error) {
	factory, err := m.reg.Factory(algorithmID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d live sessions", ErrSessionLimit, m.opts.MaxSessions)
	}
	id := fmt.Sprintf("sess-%d", atomic.AddUint64(&m.seq, 1))
	s := newSession(id, m.sp, m.exec)
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.init(ctx, factory, p); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, err
	}
	m.updateGauge()
	observability.Default.IncCounter("sessions_opened_total", nil, 1)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Close releases the session's engine and forgets the id. Closing an
// unknown id succeeds: the client may be retrying a close that already
// landed, and close is idempotent by contract.
func (m *Manager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.closeSession(ctx, s)
	m.updateGauge()
}

// Shutdown closes every live session and stops the idle reaper.
func (m *Manager) Shutdown(ctx context.Context) {
	m.reapOnce.Do(func() { close(m.stopReap) })
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		m.closeSession(ctx, s)
	}
	m.updateGauge()
}

func (m *Manager) closeSession(ctx context.Context, s *Session) {
	trace := s.snapshotTrace()
	if err := s.Close(); err != nil {
		log.Printf("session %s: release engine: %v", s.ID(), err)
	}
	if m.opts.Archive != nil && len(trace) > 0 {
		m.opts.Archive(ctx, s.ID(), trace)
	}
	observability.Default.IncCounter("sessions_closed_total", nil, 1)
}

func (m *Manager) reapLoop() {
	interval := m.opts.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopReap:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().UTC().Add(-m.opts.IdleTTL)
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		log.Printf("session %s: idle for more than %s, closing", s.ID(), m.opts.IdleTTL)
		m.closeSession(context.Background(), s)
		observability.Default.IncCounter("sessions_reaped_total", nil, 1)
	}
	if len(expired) > 0 {
		m.updateGauge()
	}
}

func (m *Manager) updateGauge() {
	m.mu.Lock()
	n := len(m.sessions)
	m.mu.Unlock()
	observability.Default.SetGauge("sessions_active", nil, float64(n))
}

func (s *Session) snapshotTrace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.trace))
	copy(out, s.trace)
	return out
}
