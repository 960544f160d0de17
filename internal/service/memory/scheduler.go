package memory

import (
	"fmt"

	"github.com/sandevgo/recall/internal/core"
)

type Decision struct {
	Reset              bool
	Reason             core.ResetReason
	ExtraConsolidation bool
}

// Scheduler decides when a session's execution context is replaced.
type Scheduler struct {
	hardLimit       int
	healthThreshold float64
	minMessages     int
}

func NewScheduler(hardLimit int, healthThreshold float64, minMessages int) *Scheduler {
	return &Scheduler{
		hardLimit:       hardLimit,
		healthThreshold: healthThreshold,
		minMessages:     minMessages,
	}
}

// Decide applies the reset rules in order, the first match wins.
func (s *Scheduler) Decide(sess core.Session, latest *core.HealthRecord) Decision {
	if sess.ContextHandle == "" {
		if sess.ResetCount == 0 && sess.TotalMessages <= 1 {
			return Decision{Reset: true, Reason: core.ReasonInitial}
		}
		return Decision{Reset: true, Reason: core.ReasonRecovery}
	}

	if sess.MessageCountSinceReset >= s.hardLimit {
		return Decision{Reset: true, Reason: core.ReasonLimit}
	}

	if latest != nil &&
		latest.RetentionScore < s.healthThreshold &&
		sess.MessageCountSinceReset >= s.minMessages {
		return Decision{Reset: true, Reason: core.ReasonHealth, ExtraConsolidation: true}
	}

	return Decision{}
}

var transitions = map[core.ContextState][]core.ContextState{
	core.ContextActive:        {core.ContextResetting},
	core.ContextResetting:     {core.ContextReinitialized, core.ContextActive, core.ContextNeedsInit},
	core.ContextReinitialized: {core.ContextActive, core.ContextResetting},
	core.ContextNeedsInit:     {core.ContextResetting},
}

// Transition moves the session to the next context state.
func Transition(sess *core.Session, to core.ContextState) error {
	for _, allowed := range transitions[sess.ContextState] {
		if allowed == to {
			sess.ContextState = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrIllegalTransition, sess.ContextState, to)
}

// CounterAfterReset returns the message count a new context starts with.
// The first context inherits the messages that led to its creation. A
// recovered context holds only the message that triggered the recovery.
func CounterAfterReset(reason core.ResetReason, count int) int {
	switch reason {
	case core.ReasonInitial:
		return count
	case core.ReasonRecovery:
		return min(count, 1)
	default:
		return 0
	}
}
