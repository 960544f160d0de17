package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/recall/internal/core"
)

// Store keeps every repository in process memory. It is meant for tests,
// replays and deployments that do not need state across restarts.
type Store struct {
	mu          sync.RWMutex
	policy      core.MergePolicy
	sessions    map[string]core.Session
	facts       map[string]map[string]core.Fact
	health      map[string][]core.HealthRecord
	signals     map[string][]core.MessageSignal
	transcripts map[string][]core.Message
}

var _ core.Repository = (*Store)(nil)

func New(policy core.MergePolicy) *Store {
	return &Store{
		policy:      policy,
		sessions:    make(map[string]core.Session),
		facts:       make(map[string]map[string]core.Fact),
		health:      make(map[string][]core.HealthRecord),
		signals:     make(map[string][]core.MessageSignal),
		transcripts: make(map[string][]core.Message),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %q already exists", sess.ID)
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, id)
	}
	return cloneSession(sess), nil
}

func (s *Store) SaveSession(ctx context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownSession, sess.ID)
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		res = append(res, cloneSession(sess))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt) ||
			res[i].CreatedAt.Equal(res[j].CreatedAt) && res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *Store) Upsert(ctx context.Context, sessionID string, cand core.Candidate, now time.Time) (core.FactUpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return core.FactUpdateResult{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}

	facts := s.facts[sessionID]
	if facts == nil {
		facts = make(map[string]core.Fact)
		s.facts[sessionID] = facts
	}

	var existing *core.Fact
	if f, ok := facts[cand.FactType]; ok {
		existing = &f
	}

	next, res, err := s.policy.Merge(existing, sessionID, cand, now)
	if err != nil {
		return core.FactUpdateResult{}, err
	}
	facts[cand.FactType] = next
	res.Fact = cloneFact(next)
	return res, nil
}

func (s *Store) Get(ctx context.Context, sessionID, factType string) (*core.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.facts[sessionID][factType]
	if !ok {
		return nil, nil
	}
	res := cloneFact(f)
	return &res, nil
}

func (s *Store) List(ctx context.Context, sessionID string, categories ...core.Category) ([]core.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}

	allowed := make(map[core.Category]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	res := make([]core.Fact, 0, len(s.facts[sessionID]))
	for _, f := range s.facts[sessionID] {
		if len(allowed) > 0 && !allowed[f.Category] {
			continue
		}
		res = append(res, cloneFact(f))
	}
	core.SortFacts(res)
	return res, nil
}

func (s *Store) Maintain(ctx context.Context, sessionID string, rules core.MaintenanceRules, now time.Time) (core.MaintenanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result core.MaintenanceResult
	for factType, f := range s.facts[sessionID] {
		prune, boosted := rules.Apply(&f, now)
		switch {
		case prune:
			delete(s.facts[sessionID], factType)
			result.Pruned++
		case boosted:
			s.facts[sessionID][factType] = f
			result.Boosted++
		}
	}
	return result, nil
}

func (s *Store) AppendHealth(ctx context.Context, rec core.HealthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.health[rec.SessionID] = append(s.health[rec.SessionID], rec)
	return nil
}

func (s *Store) LatestHealth(ctx context.Context, sessionID string) (*core.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.health[sessionID]
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[len(records)-1]
	return &rec, nil
}

// HealthHistory returns the newest records first.
func (s *Store) HealthHistory(ctx context.Context, sessionID string, limit int) ([]core.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.health[sessionID]
	res := make([]core.HealthRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, records[i])
	}
	return res, nil
}

func (s *Store) AppendSignal(ctx context.Context, sig core.MessageSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig.Topics = append([]string(nil), sig.Topics...)
	if len(sig.Topics) == 0 {
		sig.Topics = nil
	}
	s.signals[sig.SessionID] = append(s.signals[sig.SessionID], sig)
	return nil
}

// RecentSignals returns the newest signals first.
func (s *Store) RecentSignals(ctx context.Context, sessionID string, limit int) ([]core.MessageSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signals := s.signals[sessionID]
	res := make([]core.MessageSignal, 0, len(signals))
	for i := len(signals) - 1; i >= 0; i-- {
		if limit > 0 && len(res) == limit {
			break
		}
		sig := signals[i]
		sig.Topics = append([]string(nil), sig.Topics...)
		if len(sig.Topics) == 0 {
			sig.Topics = nil
		}
		res = append(res, sig)
	}
	return res, nil
}

func (s *Store) AddMessage(ctx context.Context, handle string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[handle] = append(s.transcripts[handle], msg)
	return nil
}

func (s *Store) GetMessages(ctx context.Context, handle string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var system, conversation []core.Message
	for _, msg := range s.transcripts[handle] {
		if msg.Role == core.RoleSystem {
			system = append(system, msg)
			continue
		}
		conversation = append(conversation, msg)
	}
	if limit > 0 && len(conversation) > limit {
		conversation = conversation[len(conversation)-limit:]
	}
	return append(system, conversation...), nil
}

func (s *Store) DeleteTranscript(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transcripts, handle)
	return nil
}

func cloneFact(f core.Fact) core.Fact {
	f.ContradictionLog = append([]core.Contradiction(nil), f.ContradictionLog...)
	return f
}

func cloneSession(s core.Session) core.Session {
	if s.LastResetAt != nil {
		t := *s.LastResetAt
		s.LastResetAt = &t
	}
	return s
}
