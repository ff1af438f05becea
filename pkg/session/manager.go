package session

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/promptforge/promptforge/pkg/perr"
)

// Default TTLs per spec §3: review sessions expire faster than normal
// chains. Both are configurable; these are sensible defaults, not
// hard-coded policy (spec §9's open question).
const (
	DefaultReviewTTL = 5 * time.Minute
	DefaultChainTTL  = 60 * time.Minute
)

// Manager owns the full set of chain sessions, serializing every mutation
// through a single mutex (the "serialize through a channel/queue" option
// of spec §4.2, implemented as a coarse lock — correctness, not
// throughput, is the contract here) and persisting the whole set to one
// file on every mutation.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	statePath string
	reviewTTL time.Duration
	chainTTL  time.Duration

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// Config configures a new Manager.
type Config struct {
	StatePath       string
	ReviewTTL       time.Duration
	ChainTTL        time.Duration
	CleanupInterval time.Duration
}

// NewManager loads statePath best-effort (missing/corrupt yields empty
// state plus a logged warning) and starts the TTL cleanup ticker.
func NewManager(cfg Config) *Manager {
	if cfg.ReviewTTL <= 0 {
		cfg.ReviewTTL = DefaultReviewTTL
	}
	if cfg.ChainTTL <= 0 {
		cfg.ChainTTL = DefaultChainTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	sessions, warning := loadFile(cfg.StatePath)
	if warning != "" {
		log.Printf("session: %s", warning)
	}

	m := &Manager{
		sessions:  sessions,
		statePath: cfg.StatePath,
		reviewTTL: cfg.ReviewTTL,
		chainTTL:  cfg.ChainTTL,
		done:      make(chan struct{}),
	}
	m.ticker = time.NewTicker(cfg.CleanupInterval)
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.CleanupStaleSessions()
		}
	}
}

// Shutdown flushes pending persistence and stops the cleanup ticker.
func (m *Manager) Shutdown() error {
	close(m.done)
	m.ticker.Stop()
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeAtomic(m.statePath, m.sessions)
}

func (m *Manager) persistLocked() {
	if m.statePath == "" {
		return
	}
	if err := writeAtomic(m.statePath, m.sessions); err != nil {
		log.Printf("session: persistence write failed: %v", err)
	}
}

// CreateSession creates a new session, failing with a Session error if one
// already exists for sessionID, unless forceRestart is set.
func (m *Manager) CreateSession(sessionID, chainID string, totalSteps int, blueprint any, forceRestart bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok && !forceRestart {
		return nil, perr.New(perr.Session, "session %q already exists", sessionID).
			WithHint(fmt.Sprintf("resume with chain_id=%q, or pass force_restart=true (without chain_id) to start over", sessionID)).
			WithRetry(fmt.Sprintf("command=\">>%s\" force_restart=true", chainID))
	}

	now := time.Now().UTC()
	s := &Session{
		SessionID:      sessionID,
		ChainID:        chainID,
		ChainRunID:     sessionID,
		CurrentStep:    0,
		TotalSteps:     totalSteps,
		StepStates:     make(map[int]StepRecord),
		StepResults:    make(map[int]string),
		StepArgs:       make(map[int]map[string]any),
		SessionBlueprint: deepCopy(blueprint),
		CreatedAt:      now,
		LastActivity:   now,
	}
	m.sessions[sessionID] = s
	m.persistLocked()
	return s, nil
}

// GetSession returns the live session for sessionID, if any. Callers must
// not mutate the returned pointer's fields directly; go through Manager
// methods so every mutation is serialized and persisted.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// HasActiveSession reports whether sessionID currently exists.
func (m *Manager) HasActiveSession(sessionID string) bool {
	_, ok := m.GetSession(sessionID)
	return ok
}

// SetStepState sets step's lifecycle state and placeholder flag.
func (m *Manager) SetStepState(sessionID string, step int, state StepState, isPlaceholder bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.StepStates[step] = StepRecord{State: state, IsPlaceholder: isPlaceholder}
	if !containsInt(s.ExecutionOrder, step) {
		s.ExecutionOrder = append(s.ExecutionOrder, step)
	}
	s.LastActivity = time.Now().UTC()
	m.persistLocked()
	return nil
}

// CompleteStep marks step completed and stores its result, advancing
// current_step only when preservePlaceholder is false — spec §3's
// invariant that a placeholder completion does not advance the cursor.
func (m *Manager) CompleteStep(sessionID string, step int, result string, preservePlaceholder bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.StepStates[step] = StepRecord{State: StepCompleted, IsPlaceholder: preservePlaceholder}
	s.StepResults[step] = result
	if !preservePlaceholder {
		s.CurrentStep = step
	}
	s.LastActivity = time.Now().UTC()
	m.persistLocked()
	return nil
}

// SetStepArgs records the args a step was rendered with, so GetChainContext
// can expose CurrentStepArgs / the {{input}} alias.
func (m *Manager) SetStepArgs(sessionID string, step int, args map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.StepArgs[step] = args
	m.persistLocked()
	return nil
}

// GetChainContext assembles the template/branch-evaluation view of a
// session's accumulated state, per spec §4.2. Input aliases the current
// step's args at step 1 and the previous step's result thereafter.
func (m *Manager) GetChainContext(sessionID string) (ChainContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ChainContext{}, unknownSession(sessionID)
	}

	input := ""
	if s.CurrentStep == 0 {
		if args, ok := s.StepArgs[1]; ok {
			if v, ok := args["input"]; ok {
				input = fmt.Sprint(v)
			}
		}
	} else if prev, ok := s.StepResults[s.CurrentStep]; ok {
		input = prev
	}

	return ChainContext{
		ChainID:         s.ChainID,
		ChainRunID:      s.ChainRunID,
		TotalSteps:      s.TotalSteps,
		CurrentStep:     s.CurrentStep,
		CurrentStepArgs: s.StepArgs[s.CurrentStep+1],
		StepResults:     cloneStepResults(s.StepResults),
		Input:           input,
		ChainMetadata:   s.ChainMetadata,
	}, nil
}

// SetPendingGateReview suspends the chain pending a self-review verdict.
func (m *Manager) SetPendingGateReview(sessionID string, review *PendingGateReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.PendingReview = review
	s.LastActivity = time.Now().UTC()
	m.persistLocked()
	return nil
}

// GetPendingGateReview returns the active review suspension, if any.
func (m *Manager) GetPendingGateReview(sessionID string) (*PendingGateReview, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false, unknownSession(sessionID)
	}
	return s.PendingReview, s.PendingReview != nil, nil
}

// ClearPendingGateReview resumes a chain after its gate verdict was
// resolved (pass, skip, or abort).
func (m *Manager) ClearPendingGateReview(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.PendingReview = nil
	s.LastActivity = time.Now().UTC()
	m.persistLocked()
	return nil
}

// UpdateSessionBlueprint stores an immutable deep-copied snapshot —
// subsequent mutation of the caller's blueprint value must never be
// observed through GetSessionBlueprint.
func (m *Manager) UpdateSessionBlueprint(sessionID string, blueprint any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return unknownSession(sessionID)
	}
	s.SessionBlueprint = deepCopy(blueprint)
	m.persistLocked()
	return nil
}

// GetSessionBlueprint returns a snapshot independent of subsequent
// mutation to the stored value.
func (m *Manager) GetSessionBlueprint(sessionID string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, unknownSession(sessionID)
	}
	return deepCopy(s.SessionBlueprint), nil
}

// ClearSession removes sessionID entirely (explicit clear or completion).
func (m *Manager) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	m.persistLocked()
}

// CleanupStaleSessions removes any session whose last activity exceeds
// its class TTL: review sessions (pending_gate_review set) use reviewTTL,
// everything else uses chainTTL. Returns the removed session ids.
func (m *Manager) CleanupStaleSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var removed []string
	for id, s := range m.sessions {
		ttl := m.chainTTL
		if s.Suspended() {
			ttl = m.reviewTTL
		}
		if now.Sub(s.LastActivity) > ttl {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		m.persistLocked()
	}
	return removed
}

func unknownSession(id string) error {
	return perr.New(perr.Session, "unknown session %q", id).
		WithHint("the session may have expired or never existed")
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func cloneStepResults(m map[int]string) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// deepCopy round-trips v through JSON to produce a value with no shared
// structure with the original — sufficient for the JSON-shaped blueprint
// and chain-metadata values this package stores.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
