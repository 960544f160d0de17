package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// MergePolicy reconciles a candidate with the current value of a fact.
// Every FactStore implementation applies the same policy.
type MergePolicy struct {
	ReinforceBonus float64
	ReplaceMargin  float64
	// MaxContradictions bounds the contradiction log, oldest entries are dropped first.
	MaxContradictions int
}

func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		ReinforceBonus:    0.1,
		ReplaceMargin:     0.2,
		MaxContradictions: 20,
	}
}

func ValidateCandidate(c Candidate) error {
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, c.Confidence)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c.Category)
	}
	if strings.TrimSpace(c.FactType) == "" || strings.TrimSpace(c.Value) == "" {
		return ErrInvalidCandidate
	}
	return nil
}

// Equivalent reports whether two values denote the same fact.
func Equivalent(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Merge computes the next state of a fact. existing is nil when the fact is new.
func (p MergePolicy) Merge(existing *Fact, sessionID string, cand Candidate, now time.Time) (Fact, FactUpdateResult, error) {
	if err := ValidateCandidate(cand); err != nil {
		return Fact{}, FactUpdateResult{}, err
	}
	value := strings.TrimSpace(cand.Value)

	if existing == nil {
		fact := Fact{
			SessionID:         sessionID,
			FactType:          cand.FactType,
			Category:          cand.Category,
			Value:             value,
			Confidence:        cand.Confidence,
			Priority:          cand.Priority,
			ConfirmationCount: 1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return fact, FactUpdateResult{Outcome: OutcomeCreated, Fact: fact, NewConfidence: fact.Confidence}, nil
	}

	fact := *existing
	fact.ContradictionLog = append([]Contradiction(nil), existing.ContradictionLog...)
	fact.UpdatedAt = now

	if Equivalent(existing.Value, value) {
		reinforced := Clamp(math.Min(1, (existing.Confidence+cand.Confidence)/2+p.ReinforceBonus))
		fact.Confidence = math.Max(existing.Confidence, reinforced)
		fact.ConfirmationCount++
		if cand.Priority.Rank() > fact.Priority.Rank() {
			fact.Priority = cand.Priority
		}
		return fact, FactUpdateResult{Outcome: OutcomeReinforced, Fact: fact, NewConfidence: fact.Confidence}, nil
	}

	if p.exceedsMargin(cand.Confidence, existing.Confidence) {
		fact.ContradictionLog = p.appendLog(fact.ContradictionLog, Contradiction{
			Value:      existing.Value,
			Confidence: existing.Confidence,
			RecordedAt: now,
		})
		fact.Value = value
		fact.Confidence = Clamp(cand.Confidence)
		fact.Category = cand.Category
		fact.Priority = cand.Priority
		fact.ConfirmationCount = 1
		return fact, FactUpdateResult{
			Outcome:       OutcomeReplaced,
			Fact:          fact,
			NewConfidence: fact.Confidence,
			OldValue:      existing.Value,
		}, nil
	}

	fact.ContradictionLog = p.appendLog(fact.ContradictionLog, Contradiction{
		Value:      value,
		Confidence: cand.Confidence,
		RecordedAt: now,
	})
	return fact, FactUpdateResult{
		Outcome:       OutcomeKept,
		Fact:          fact,
		NewConfidence: fact.Confidence,
		Reason: fmt.Sprintf("confidence %.2f does not exceed %.2f by more than %.2f",
			cand.Confidence, existing.Confidence, p.ReplaceMargin),
	}, nil
}

// confidenceEpsilon absorbs float rounding, so 0.9 against 0.7 sits exactly on the margin.
const confidenceEpsilon = 1e-9

// exceedsMargin reports whether next beats current by strictly more than the replace margin.
func (p MergePolicy) exceedsMargin(next, current float64) bool {
	return next-current > p.ReplaceMargin+confidenceEpsilon
}

func (p MergePolicy) appendLog(log []Contradiction, c Contradiction) []Contradiction {
	log = append(log, c)
	if p.MaxContradictions > 0 && len(log) > p.MaxContradictions {
		log = log[len(log)-p.MaxContradictions:]
	}
	return log
}

// Apply runs the optimization pass on a single fact. It reports
// whether the fact should be deleted and whether its confidence changed.
func (r MaintenanceRules) Apply(f *Fact, now time.Time) (prune bool, boosted bool) {
	if f.ConfirmationCount <= 1 && f.Confidence < r.PruneBelow && r.prunable(f.Priority) {
		return true, false
	}
	if r.BoostAfter > 0 && f.ConfirmationCount > r.BoostAfter && f.Confidence < 1 {
		f.Confidence = Clamp(f.Confidence + r.BoostAmount)
		f.UpdatedAt = now
		return false, true
	}
	return false, false
}

func (r MaintenanceRules) prunable(p Priority) bool {
	if len(r.PrunePriorities) == 0 {
		return !p.Essential()
	}
	for _, allowed := range r.PrunePriorities {
		if allowed == p {
			return true
		}
	}
	return false
}

func DefaultMaintenanceRules() MaintenanceRules {
	return MaintenanceRules{
		PruneBelow:  0.3,
		BoostAfter:  2,
		BoostAmount: 0.1,
	}
}

// SortFacts orders facts by priority, then confidence, then fact type.
func SortFacts(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.FactType < b.FactType
	})
}
