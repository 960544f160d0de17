package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/telemetry"
	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/retry"
)

// Store is the persistence the memory core needs.
type Store interface {
	core.FactStore
	core.SessionRepository
	core.HealthRepository
	core.SignalRepository
}

// signalWindow is how many recent signals a bundle is composed from.
const signalWindow = 10

// Memory keeps conversations coherent across execution context resets.
// Each inbound message is consolidated into facts, scored, and either
// forwarded to the live context or used to seed a new one.
type Memory struct {
	cfg          *config.MemoryConfig
	store        Store
	engine       core.ExecutionEngine
	consolidator *Consolidator
	analyzer     core.Analyzer
	composer     *Composer
	monitor      *Monitor
	scheduler    *Scheduler
	metrics      *telemetry.Metrics
	locks        *sessionLocks
	now          func() time.Time
}

func NewMemory(
	cfg *config.MemoryConfig,
	store Store,
	engine core.ExecutionEngine,
	extractor core.Extractor,
	analyzer core.Analyzer,
	metrics *telemetry.Metrics,
) (*Memory, error) {
	composer, err := NewComposer(cfg)
	if err != nil {
		return nil, err
	}

	return &Memory{
		cfg:          cfg,
		store:        store,
		engine:       engine,
		consolidator: NewConsolidator(extractor, store, cfg.Maintenance()),
		analyzer:     analyzer,
		composer:     composer,
		monitor:      NewMonitor(store, cfg.VelocityWindow, cfg.RelevanceWindow),
		scheduler:    NewScheduler(cfg.HardLimit, cfg.HealthThreshold, cfg.HealthMinMessages),
		metrics:      metrics,
		locks:        newSessionLocks(),
		now:          time.Now,
	}, nil
}

// Process handles one user message and returns the context the message
// must be sent to. Facts stay committed even when the context could not
// be initialized.
func (m *Memory) Process(ctx context.Context, sessionID, text string) (core.ProcessResult, error) {
	ctx = log.WithSession(ctx, sessionID)
	result := core.ProcessResult{SessionID: sessionID}

	lock := m.locks.get(sessionID)
	lock.mu.Lock()

	sess, err := m.loadSession(ctx, lock, sessionID)
	if err != nil {
		lock.mu.Unlock()
		return result, err
	}

	outcomes, err := m.consolidator.Consolidate(ctx, sessionID, text)
	result.Outcomes = outcomes
	m.metrics.ObserveMessage(outcomes)
	if err != nil {
		lock.mu.Unlock()
		return result, fmt.Errorf("consolidate message: %w", err)
	}
	m.recordSignal(ctx, sessionID, text)

	sess.TotalMessages++
	sess.MessageCountSinceReset++
	sess.Stage = DetectStage(text, sess.TotalMessages)
	sess.TrustLevel = NextTrust(sess.TrustLevel, sess.Stage)
	sess.UpdatedAt = m.now()

	m.monitor.ObserveMessage(sessionID, text, outcomes)
	facts := m.facts(ctx, sessionID)
	result.Health = m.monitor.Evaluate(ctx, sess, facts)
	m.metrics.ObserveHealth(result.Health)

	// Another message is resetting this session. Use the prior context, or
	// wait for the new one when there is none.
	if pending := lock.pending; pending != nil {
		err := m.store.SaveSession(ctx, sess)
		lock.mu.Unlock()
		if err != nil {
			return result, fmt.Errorf("save session: %w", err)
		}
		if sess.ContextHandle != "" {
			result.Handle = sess.ContextHandle
			return result, nil
		}
		return m.awaitContext(ctx, sessionID, pending, result)
	}

	// Without facts there is nothing a reset could retain.
	var latest *core.HealthRecord
	if len(facts) > 0 {
		latest = &result.Health
	}
	decision := m.scheduler.Decide(sess, latest)
	if !decision.Reset {
		if sess.ContextState == core.ContextReinitialized {
			if err := Transition(&sess, core.ContextActive); err != nil {
				lock.mu.Unlock()
				return result, err
			}
		}
		err := m.store.SaveSession(ctx, sess)
		lock.mu.Unlock()
		if err != nil {
			return result, fmt.Errorf("save session: %w", err)
		}
		result.Handle = sess.ContextHandle
		return result, nil
	}

	bundle, handle, err := m.reset(ctx, lock, sess, facts, decision)
	result.Reason = decision.Reason
	if err != nil {
		return result, err
	}
	result.ResetOccurred = true
	result.BundleUsed = &bundle
	result.Handle = handle
	return result, nil
}

// ForceReset replaces the session's context regardless of the scheduler.
// It serves manual resets and recovery from a context the engine lost.
func (m *Memory) ForceReset(ctx context.Context, sessionID string, reason core.ResetReason) (core.ProcessResult, error) {
	ctx = log.WithSession(ctx, sessionID)
	result := core.ProcessResult{SessionID: sessionID, Reason: reason}

	lock := m.locks.get(sessionID)
	lock.mu.Lock()

	if pending := lock.pending; pending != nil {
		lock.mu.Unlock()
		return m.awaitContext(ctx, sessionID, pending, result)
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		lock.mu.Unlock()
		return result, fmt.Errorf("get session: %w", err)
	}
	m.monitor.Restore(ctx, sessionID)
	recoverInterrupted(ctx, lock, &sess)

	facts := m.facts(ctx, sessionID)
	bundle, handle, err := m.reset(ctx, lock, sess, facts, Decision{Reset: true, Reason: reason})
	if err != nil {
		return result, err
	}
	result.ResetOccurred = true
	result.BundleUsed = &bundle
	result.Handle = handle
	return result, nil
}

// reset must be called with the session lock held and returns with it
// released. The engine is called without the lock.
func (m *Memory) reset(
	ctx context.Context,
	lock *sessionLock,
	sess core.Session,
	facts []core.Fact,
	decision Decision,
) (core.MemoryBundle, string, error) {
	logger := log.FromCtx(ctx)

	if decision.ExtraConsolidation {
		if _, err := m.consolidator.Optimize(ctx, sess.ID); err != nil {
			logger.Warn().Err(err).Msg("optimization before reset failed")
		} else {
			facts = m.facts(ctx, sess.ID)
		}
	}

	bundle := m.composer.Compose(sess, facts, m.signals(ctx, sess.ID))

	if err := Transition(&sess, core.ContextResetting); err != nil {
		lock.mu.Unlock()
		return bundle, "", err
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		lock.mu.Unlock()
		return bundle, "", fmt.Errorf("save session: %w", err)
	}
	pending := make(chan struct{})
	lock.pending = pending
	lock.mu.Unlock()

	logger.Info().
		Str("reason", string(decision.Reason)).
		Int("bundle_chars", bundle.Len()).
		Int("facts", len(bundle.Facts)).
		Msg("initializing execution context")

	started := time.Now()
	handle, initErr := m.initialize(ctx, bundle)
	took := time.Since(started)

	// The outcome is committed even if the caller went away meanwhile.
	commitCtx := context.WithoutCancel(ctx)

	lock.mu.Lock()
	lock.pending = nil
	close(pending)

	cur, err := m.store.GetSession(commitCtx, sess.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to reload session, committing local copy")
		cur = sess
	}

	if initErr != nil {
		next := core.ContextActive
		if cur.ContextHandle == "" {
			next = core.ContextNeedsInit
		}
		if err := Transition(&cur, next); err != nil {
			logger.Warn().Err(err).Msg("unexpected state after failed reset")
			cur.ContextState = next
		}
		if err := m.store.SaveSession(commitCtx, cur); err != nil {
			logger.Error().Err(err).Msg("failed to save session after failed reset")
		}
		lock.mu.Unlock()

		m.metrics.ObserveInitFailure(took)
		logger.Error().Err(initErr).Str("state", string(next)).Msg("execution context initialization failed")
		return bundle, "", fmt.Errorf("%w: %w", core.ErrEngineInit, initErr)
	}

	previous := cur.ContextHandle
	now := m.now()

	cur.ContextHandle = handle
	if err := Transition(&cur, core.ContextReinitialized); err != nil {
		logger.Warn().Err(err).Msg("unexpected state after reset")
		cur.ContextState = core.ContextReinitialized
	}
	cur.MessageCountSinceReset = CounterAfterReset(decision.Reason, cur.MessageCountSinceReset)
	if decision.Reason != core.ReasonInitial {
		cur.ResetCount++
	}
	cur.LastResetAt = &now
	cur.UpdatedAt = now

	if err := m.store.SaveSession(commitCtx, cur); err != nil {
		lock.mu.Unlock()
		m.release(commitCtx, handle)
		return bundle, "", fmt.Errorf("commit reset: %w", err)
	}
	m.monitor.ObserveReset(sess.ID, facts, bundle)
	lock.mu.Unlock()

	m.metrics.ObserveReset(decision.Reason, bundle, took)
	logger.Info().
		Str("reason", string(decision.Reason)).
		Str("handle", handle).
		Int("reset_count", cur.ResetCount).
		Dur("took", took).
		Msg("execution context reset")

	if previous != "" && previous != handle {
		m.release(commitCtx, previous)
	}
	return bundle, handle, nil
}

func (m *Memory) initialize(ctx context.Context, bundle core.MemoryBundle) (string, error) {
	logger := log.FromCtx(ctx)

	cfg := retry.NewImmediateConfig(m.cfg.InitRetries)
	cfg.Retryable = func(error) bool { return ctx.Err() == nil }
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying execution context initialization")
	}

	var handle string
	err := retry.NewRetrier(cfg).Do(ctx, func(int) error {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if m.cfg.EngineTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, m.cfg.EngineTimeout)
		}
		defer cancel()

		h, err := m.engine.Initialize(actx, bundle)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	return handle, err
}

func (m *Memory) release(ctx context.Context, handle string) {
	if err := m.engine.Release(ctx, handle); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("handle", handle).Msg("failed to release execution context")
	}
}

func (m *Memory) awaitContext(ctx context.Context, sessionID string, pending <-chan struct{}, result core.ProcessResult) (core.ProcessResult, error) {
	select {
	case <-pending:
	case <-ctx.Done():
		return result, ctx.Err()
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return result, fmt.Errorf("get session: %w", err)
	}
	if sess.ContextHandle == "" {
		return result, fmt.Errorf("%w: no context after concurrent reset", core.ErrEngineInit)
	}
	result.Handle = sess.ContextHandle
	return result, nil
}

// loadSession returns the stored session or creates it. A session left
// RESETTING by a crashed process is rolled back.
func (m *Memory) loadSession(ctx context.Context, lock *sessionLock, sessionID string) (core.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, core.ErrUnknownSession) {
		sess = core.NewSession(sessionID, m.now())
		if err := m.store.CreateSession(ctx, sess); err != nil {
			return sess, fmt.Errorf("create session: %w", err)
		}
		log.FromCtx(ctx).Info().Msg("session created")
		return sess, nil
	}
	if err != nil {
		return sess, fmt.Errorf("get session: %w", err)
	}

	m.monitor.Restore(ctx, sessionID)
	recoverInterrupted(ctx, lock, &sess)
	return sess, nil
}

func recoverInterrupted(ctx context.Context, lock *sessionLock, sess *core.Session) {
	if sess.ContextState != core.ContextResetting || lock.pending != nil {
		return
	}
	next := core.ContextActive
	if sess.ContextHandle == "" {
		next = core.ContextNeedsInit
	}
	log.FromCtx(ctx).Warn().Str("state", string(next)).Msg("recovering interrupted reset")
	sess.ContextState = next
}

// facts lists the session's facts. Failures degrade to an empty list.
func (m *Memory) facts(ctx context.Context, sessionID string) []core.Fact {
	facts, err := m.store.List(ctx, sessionID)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to list facts")
		return nil
	}
	return facts
}

func (m *Memory) recordSignal(ctx context.Context, sessionID, text string) {
	sig := m.analyzer.Analyze(text)
	sig.SessionID = sessionID
	sig.RecordedAt = m.now()
	if err := m.store.AppendSignal(ctx, sig); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to record message signal")
	}
}

func (m *Memory) signals(ctx context.Context, sessionID string) []core.MessageSignal {
	signals, err := m.store.RecentSignals(ctx, sessionID, signalWindow)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to list message signals")
		return nil
	}
	return signals
}

// RecordReply lets the health monitor see what the engine answered.
func (m *Memory) RecordReply(ctx context.Context, sessionID, reply string) {
	m.monitor.ObserveReply(sessionID, reply)
}

func (m *Memory) Session(ctx context.Context, sessionID string) (core.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

func (m *Memory) Sessions(ctx context.Context) ([]core.Session, error) {
	return m.store.ListSessions(ctx)
}

// GetHealth returns the latest health record, neutral when none exists.
func (m *Memory) GetHealth(ctx context.Context, sessionID string) (core.HealthRecord, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return core.HealthRecord{}, err
	}
	rec, err := m.store.LatestHealth(ctx, sessionID)
	if err != nil {
		return core.HealthRecord{}, fmt.Errorf("latest health: %w", err)
	}
	if rec == nil {
		return core.NeutralHealth(sessionID, m.now()), nil
	}
	return *rec, nil
}

func (m *Memory) HealthHistory(ctx context.Context, sessionID string, limit int) ([]core.HealthRecord, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.store.HealthHistory(ctx, sessionID, limit)
}

func (m *Memory) ListFacts(ctx context.Context, sessionID string, categories ...core.Category) ([]core.Fact, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.store.List(ctx, sessionID, categories...)
}

// PreviewBundle renders the bundle a reset would use right now.
func (m *Memory) PreviewBundle(ctx context.Context, sessionID string) (core.MemoryBundle, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return core.MemoryBundle{}, err
	}
	facts, err := m.store.List(ctx, sessionID)
	if err != nil {
		return core.MemoryBundle{}, fmt.Errorf("list facts: %w", err)
	}
	signals, err := m.store.RecentSignals(ctx, sessionID, signalWindow)
	if err != nil {
		return core.MemoryBundle{}, fmt.Errorf("recent signals: %w", err)
	}
	return m.composer.Compose(sess, facts, signals), nil
}
