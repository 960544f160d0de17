package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// Monitor scores how well memory survives resets. It keeps per-session
// observation windows in memory and appends every evaluation to the repository.
type Monitor struct {
	repo            core.HealthRepository
	velocityWindow  int
	relevanceWindow int
	now             func() time.Time

	mu       sync.Mutex
	sessions map[string]*healthState
}

type healthState struct {
	learned []int // learned facts per message, oldest first

	retention float64

	// relevance window opened by the most recent reset
	values     []string
	referenced map[int]bool
	seen       int
	open       bool

	relevance    float64
	hasRelevance bool
}

func NewMonitor(repo core.HealthRepository, velocityWindow, relevanceWindow int) *Monitor {
	return &Monitor{
		repo:            repo,
		velocityWindow:  max(velocityWindow, 1),
		relevanceWindow: max(relevanceWindow, 1),
		now:             time.Now,
		sessions:        make(map[string]*healthState),
	}
}

func (m *Monitor) state(sessionID string) *healthState {
	st, ok := m.sessions[sessionID]
	if !ok {
		st = &healthState{retention: 1}
		m.sessions[sessionID] = st
	}
	return st
}

// Restore seeds a session's scores from its last persisted record so a
// restarted process keeps judging resets the same way.
func (m *Monitor) Restore(ctx context.Context, sessionID string) {
	m.mu.Lock()
	_, known := m.sessions[sessionID]
	m.mu.Unlock()
	if known {
		return
	}

	rec, err := m.repo.LatestHealth(ctx, sessionID)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("session", sessionID).Msg("failed to restore health state")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.sessions[sessionID]; known {
		return
	}
	st := m.state(sessionID)
	if rec != nil {
		st.retention = rec.RetentionScore
		st.relevance = rec.ContextRelevance
		st.hasRelevance = true
	}
}

// ObserveMessage records a user message and the updates it produced.
func (m *Monitor) ObserveMessage(sessionID, text string, outcomes []core.FactUpdateResult) {
	learned := 0
	for _, o := range outcomes {
		if o.Learned() {
			learned++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(sessionID)
	st.learned = append(st.learned, learned)
	if len(st.learned) > m.velocityWindow {
		st.learned = st.learned[len(st.learned)-m.velocityWindow:]
	}

	if !st.open {
		return
	}
	if st.seen >= m.relevanceWindow {
		st.closeWindow()
		return
	}
	st.seen++
	st.markReferences(text)
}

// ObserveReply counts references made by the engine inside the relevance window.
func (m *Monitor) ObserveReply(sessionID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(sessionID)
	if st.open && st.seen > 0 {
		st.markReferences(text)
	}
}

// ObserveReset records which essential facts made it into the bundle of a
// new context and opens a fresh relevance window.
func (m *Monitor) ObserveReset(sessionID string, before []core.Fact, bundle core.MemoryBundle) {
	essential, kept := 0, 0
	for _, f := range before {
		if !f.Priority.Essential() {
			continue
		}
		essential++
		if bundle.Includes(f.FactType) {
			kept++
		}
	}

	var values []string
	for _, bf := range bundle.Facts {
		if !bf.Partial && strings.TrimSpace(bf.Value) != "" {
			values = append(values, strings.ToLower(bf.Value))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(sessionID)
	st.retention = 1
	if essential > 0 {
		st.retention = float64(kept) / float64(essential)
	}

	if st.open && st.seen > 0 {
		st.closeWindow()
	}
	st.values = values
	st.referenced = make(map[int]bool)
	st.seen = 0
	st.open = len(values) > 0
}

func (st *healthState) markReferences(text string) {
	lower := strings.ToLower(text)
	for i, v := range st.values {
		if strings.Contains(lower, v) {
			st.referenced[i] = true
		}
	}
}

func (st *healthState) closeWindow() {
	st.relevance = float64(len(st.referenced)) / float64(len(st.values))
	st.hasRelevance = true
	st.open = false
}

// Evaluate scores the session against its current facts and appends the
// record. Persistence failures are logged and never returned.
func (m *Monitor) Evaluate(ctx context.Context, sess core.Session, facts []core.Fact) core.HealthRecord {
	rec := core.NeutralHealth(sess.ID, m.now())
	rec.ID = ulid.Make().String()

	if len(facts) > 0 {
		contradicted := 0
		for _, f := range facts {
			if len(f.ContradictionLog) > 0 {
				contradicted++
			}
		}
		rec.ConsistencyScore = max(0, 1-float64(contradicted)/float64(len(facts)))

		m.mu.Lock()
		st := m.state(sess.ID)
		learned := 0
		for _, n := range st.learned {
			learned += n
		}
		rec.LearningVelocity = min(1, float64(learned)/float64(m.velocityWindow))
		rec.RetentionScore = st.retention
		if st.hasRelevance {
			rec.ContextRelevance = st.relevance
		}
		m.mu.Unlock()
	}

	if err := m.repo.AppendHealth(ctx, rec); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("session", sess.ID).Msg("failed to persist health record")
	}
	return rec
}
