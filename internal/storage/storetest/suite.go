// Package storetest holds the behaviour every core.Repository implementation must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/core"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises repo. newRepo must return an empty repository for every call.
func Run(t *testing.T, newRepo func(t *testing.T) core.Repository) {
	t.Run("sessions", func(t *testing.T) { testSessions(t, newRepo(t)) })
	t.Run("upsert outcomes", func(t *testing.T) { testUpsertOutcomes(t, newRepo(t)) })
	t.Run("contradiction margin", func(t *testing.T) { testContradictionMargin(t, newRepo(t)) })
	t.Run("upsert errors", func(t *testing.T) { testUpsertErrors(t, newRepo(t)) })
	t.Run("list ordering", func(t *testing.T) { testListOrdering(t, newRepo(t)) })
	t.Run("concurrent upserts", func(t *testing.T) { testConcurrentUpserts(t, newRepo(t)) })
	t.Run("maintain", func(t *testing.T) { testMaintain(t, newRepo(t)) })
	t.Run("health history", func(t *testing.T) { testHealth(t, newRepo(t)) })
	t.Run("message signals", func(t *testing.T) { testSignals(t, newRepo(t)) })
	t.Run("transcripts", func(t *testing.T) { testTranscripts(t, newRepo(t)) })
}

func seed(t *testing.T, repo core.Repository, id string) {
	t.Helper()
	require.NoError(t, repo.CreateSession(context.Background(), core.NewSession(id, base)))
}

func testContradictionMargin(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	for _, tc := range []struct {
		factType      string
		existing, new float64
	}{
		{"job", 0.7, 0.9},
		{"location", 0.5, 0.7},
	} {
		cand := core.Candidate{FactType: tc.factType, Category: core.CategoryIdentity, Value: "first", Confidence: tc.existing, Priority: core.PriorityHigh}
		_, err := repo.Upsert(ctx, "s1", cand, base)
		require.NoError(t, err)

		cand.Value = "second"
		cand.Confidence = tc.new
		res, err := repo.Upsert(ctx, "s1", cand, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, core.OutcomeKept, res.Outcome, tc.factType)

		fact, err := repo.Get(ctx, "s1", tc.factType)
		require.NoError(t, err)
		require.NotNil(t, fact)
		assert.Equal(t, "first", fact.Value)
		assert.Equal(t, tc.existing, fact.Confidence)
	}
}

func testSessions(t *testing.T, repo core.Repository) {
	ctx := context.Background()

	_, err := repo.GetSession(ctx, "missing")
	require.ErrorIs(t, err, core.ErrUnknownSession)

	seed(t, repo, "s1")
	seed(t, repo, "s2")

	sess, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.StageGreeting, sess.Stage)
	assert.Equal(t, core.ContextNeedsInit, sess.ContextState)
	assert.Nil(t, sess.LastResetAt)

	resetAt := base.Add(time.Minute)
	sess.ContextHandle = "h1"
	sess.ContextState = core.ContextActive
	sess.MessageCountSinceReset = 3
	sess.TotalMessages = 7
	sess.ResetCount = 2
	sess.TrustLevel = 0.42
	sess.Stage = core.StageDeepConversation
	sess.LastResetAt = &resetAt
	sess.UpdatedAt = resetAt
	require.NoError(t, repo.SaveSession(ctx, sess))

	got, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ContextHandle)
	assert.Equal(t, core.ContextActive, got.ContextState)
	assert.Equal(t, 3, got.MessageCountSinceReset)
	assert.Equal(t, 7, got.TotalMessages)
	assert.Equal(t, 2, got.ResetCount)
	assert.InDelta(t, 0.42, got.TrustLevel, 1e-9)
	assert.Equal(t, core.StageDeepConversation, got.Stage)
	require.NotNil(t, got.LastResetAt)
	assert.True(t, resetAt.Equal(*got.LastResetAt))

	err = repo.SaveSession(ctx, core.NewSession("ghost", base))
	assert.ErrorIs(t, err, core.ErrUnknownSession)

	all, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testUpsertOutcomes(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	cand := core.Candidate{FactType: "job", Category: core.CategoryIdentity, Value: "Google", Confidence: 0.5, Priority: core.PriorityCritical}

	res, err := repo.Upsert(ctx, "s1", cand, base)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeCreated, res.Outcome)

	cand.Value = "google"
	res, err = repo.Upsert(ctx, "s1", cand, base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeReinforced, res.Outcome)
	assert.InDelta(t, 0.6, res.NewConfidence, 1e-9)

	cand.Value = "Meta"
	cand.Confidence = 0.75
	res, err = repo.Upsert(ctx, "s1", cand, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeKept, res.Outcome)

	cand.Confidence = 0.95
	res, err = repo.Upsert(ctx, "s1", cand, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeReplaced, res.Outcome)
	assert.Equal(t, "Google", res.OldValue)

	fact, err := repo.Get(ctx, "s1", "job")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, "Meta", fact.Value)
	assert.Equal(t, 0.95, fact.Confidence)
	assert.Equal(t, 1, fact.ConfirmationCount)
	require.Len(t, fact.ContradictionLog, 2)
	assert.Equal(t, "Meta", fact.ContradictionLog[0].Value)
	assert.Equal(t, "Google", fact.ContradictionLog[1].Value)

	missing, err := repo.Get(ctx, "s1", "age")
	require.NoError(t, err)
	assert.Nil(t, missing)

	facts, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func testUpsertErrors(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	cand := core.Candidate{FactType: "name", Category: core.CategoryIdentity, Value: "Sarah", Confidence: 0.9, Priority: core.PriorityCritical}

	_, err := repo.Upsert(ctx, "ghost", cand, base)
	assert.ErrorIs(t, err, core.ErrUnknownSession)

	seed(t, repo, "s1")
	cand.Confidence = 1.5
	_, err = repo.Upsert(ctx, "s1", cand, base)
	assert.ErrorIs(t, err, core.ErrInvalidConfidence)

	fact, err := repo.Get(ctx, "s1", "name")
	require.NoError(t, err)
	assert.Nil(t, fact)

	_, err = repo.List(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrUnknownSession)
}

func testListOrdering(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	cands := []core.Candidate{
		{FactType: "mood", Category: core.CategoryOpinion, Value: "tired", Confidence: 0.65, Priority: core.PriorityMedium},
		{FactType: "location", Category: core.CategoryIdentity, Value: "Berlin", Confidence: 0.9, Priority: core.PriorityHigh},
		{FactType: "name", Category: core.CategoryIdentity, Value: "Sarah", Confidence: 0.9, Priority: core.PriorityCritical},
		{FactType: "job", Category: core.CategoryIdentity, Value: "Google", Confidence: 0.95, Priority: core.PriorityCritical},
		{FactType: "python", Category: core.CategoryPreference, Value: "likes", Confidence: 0.8, Priority: core.PriorityHigh},
	}
	for _, c := range cands {
		_, err := repo.Upsert(ctx, "s1", c, base)
		require.NoError(t, err)
	}

	facts, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	var order []string
	for _, f := range facts {
		order = append(order, f.FactType)
	}
	assert.Equal(t, []string{"job", "name", "location", "python", "mood"}, order)

	prefs, err := repo.List(ctx, "s1", core.CategoryPreference, core.CategoryOpinion)
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "python", prefs[0].FactType)
	assert.Equal(t, "mood", prefs[1].FactType)
}

func testConcurrentUpserts(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, "s1", core.Candidate{
				FactType: "city", Category: core.CategoryIdentity, Value: "Paris", Confidence: 0.5, Priority: core.PriorityHigh,
			}, base)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fact, err := repo.Get(ctx, "s1", "city")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, writers, fact.ConfirmationCount)
	assert.LessOrEqual(t, fact.Confidence, 1.0)
}

func testMaintain(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	weak := core.Candidate{FactType: "hobby", Category: core.CategoryPreference, Value: "chess", Confidence: 0.2, Priority: core.PriorityLow}
	keep := core.Candidate{FactType: "name", Category: core.CategoryIdentity, Value: "Sarah", Confidence: 0.2, Priority: core.PriorityCritical}
	strong := core.Candidate{FactType: "city", Category: core.CategoryIdentity, Value: "Paris", Confidence: 0.6, Priority: core.PriorityHigh}

	for _, c := range []core.Candidate{weak, keep, strong, strong, strong} {
		_, err := repo.Upsert(ctx, "s1", c, base)
		require.NoError(t, err)
	}
	before, err := repo.Get(ctx, "s1", "city")
	require.NoError(t, err)

	res, err := repo.Maintain(ctx, "s1", core.DefaultMaintenanceRules(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, 1, res.Boosted)

	gone, err := repo.Get(ctx, "s1", "hobby")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.Get(ctx, "s1", "name")
	require.NoError(t, err)
	assert.NotNil(t, kept)

	after, err := repo.Get(ctx, "s1", "city")
	require.NoError(t, err)
	assert.InDelta(t, core.Clamp(before.Confidence+0.1), after.Confidence, 1e-9)
}

func testSignals(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	none, err := repo.RecentSignals(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.AppendSignal(ctx, core.MessageSignal{
		SessionID: "s1", Topics: []string{"work"}, Sentiment: core.SentimentNegative,
		Emotion: "anxious", Intensity: 0.7, RecordedAt: base,
	}))
	require.NoError(t, repo.AppendSignal(ctx, core.MessageSignal{
		SessionID: "s1", Sentiment: core.SentimentNeutral, Intensity: 0.5, RecordedAt: base.Add(time.Second),
	}))
	require.NoError(t, repo.AppendSignal(ctx, core.MessageSignal{
		SessionID: "s2", Topics: []string{"food"}, Sentiment: core.SentimentPositive, Intensity: 1, RecordedAt: base,
	}))

	all, err := repo.RecentSignals(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, core.SentimentNeutral, all[0].Sentiment, "newest first")
	assert.Nil(t, all[0].Topics)
	assert.Equal(t, []string{"work"}, all[1].Topics)
	assert.Equal(t, "anxious", all[1].Emotion)
	assert.InDelta(t, 0.7, all[1].Intensity, 1e-9)
	assert.True(t, base.Equal(all[1].RecordedAt))

	limited, err := repo.RecentSignals(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, core.SentimentNeutral, limited[0].Sentiment)
}

func testHealth(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seed(t, repo, "s1")

	latest, err := repo.LatestHealth(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 0; i < 3; i++ {
		rec := core.NeutralHealth("s1", base.Add(time.Duration(i)*time.Second))
		rec.ID = string(rune('a' + i))
		rec.RetentionScore = float64(i) / 4
		require.NoError(t, repo.AppendHealth(ctx, rec))
	}

	latest, err = repo.LatestHealth(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.ID)
	assert.InDelta(t, 0.5, latest.RetentionScore, 1e-9)

	history, err := repo.HealthHistory(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ID)
	assert.Equal(t, "b", history[1].ID)

	all, err := repo.HealthHistory(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testTranscripts(t *testing.T, repo core.Repository) {
	ctx := context.Background()

	require.NoError(t, repo.AddMessage(ctx, "h1", core.Message{Role: core.RoleSystem, Content: "bundle"}))
	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, repo.AddMessage(ctx, "h1", core.Message{Role: core.RoleUser, Content: m}))
	}
	require.NoError(t, repo.AddMessage(ctx, "h2", core.Message{Role: core.RoleUser, Content: "other"}))

	msgs, err := repo.GetMessages(ctx, "h1", 2)
	require.NoError(t, err)
	assert.Equal(t, []core.Message{
		{Role: core.RoleSystem, Content: "bundle"},
		{Role: core.RoleUser, Content: "two"},
		{Role: core.RoleUser, Content: "three"},
	}, msgs)

	require.NoError(t, repo.DeleteTranscript(ctx, "h1"))
	msgs, err = repo.GetMessages(ctx, "h1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = repo.GetMessages(ctx, "h2", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
