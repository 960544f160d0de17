package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/service/command"
	"github.com/sandevgo/recall/internal/service/engine"
	"github.com/sandevgo/recall/internal/service/memory"
	"github.com/sandevgo/recall/internal/storage/inmem"
)

// echoAI answers with the system prompt it was given, so tests can see
// what the context remembers.
type echoAI struct {
	calls int
}

func (e *echoAI) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	e.calls++
	for _, m := range history {
		if m.Role == core.RoleSystem {
			return core.Message{Role: core.RoleAssistant, Content: m.Content}, nil
		}
	}
	return core.Message{Role: core.RoleAssistant, Content: "no memory"}, nil
}

func (e *echoAI) Models(ctx context.Context) ([]core.Model, error) {
	return nil, nil
}

type testRig struct {
	agent  *Agent
	memory *memory.Memory
	engine *engine.Engine
	store  *inmem.Store
	ai     *echoAI
}

func newRig(t *testing.T) *testRig {
	t.Helper()

	cfg := config.DefaultMemoryConfig()
	store := inmem.New(cfg.Policy())
	ai := &echoAI{}
	eng := engine.New(ai, store, 30)

	mem, err := memory.NewMemory(cfg, store, eng, memory.NewPatternExtractor(), memory.NewKeywordAnalyzer(), nil)
	require.NoError(t, err)

	router := command.New(command.NewCommands(mem, nil))
	return &testRig{
		agent:  NewAgent(mem, eng, router),
		memory: mem,
		engine: eng,
		store:  store,
		ai:     ai,
	}
}

func TestRunCarriesFactsAcrossResets(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t)

	var reply string
	var err error
	for _, text := range []string{
		"My name is Sarah",
		"I work at Google",
		"I love Python",
		"I have a dog named Luna",
	} {
		reply, err = rig.agent.Run(ctx, "sarah", text)
		require.NoError(t, err)
	}

	assert.Contains(t, reply, "name: Sarah")
	assert.Contains(t, reply, "job: Google")
	assert.Contains(t, reply, "dog_name: Luna")
	assert.Equal(t, 4, rig.ai.calls)
}

func TestRunRoutesSlashCommands(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t)

	_, err := rig.agent.Run(ctx, "s1", "My name is Sarah")
	require.NoError(t, err)

	reply, err := rig.agent.Run(ctx, "s1", "/facts")
	require.NoError(t, err)
	assert.Contains(t, reply, "Sarah")
	assert.Equal(t, 1, rig.ai.calls, "commands never reach the model")

	sess, err := rig.memory.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.TotalMessages, "commands are not conversation")
}

func TestRunRecoversLostContext(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t)

	_, err := rig.agent.Run(ctx, "s1", "My name is Sarah")
	require.NoError(t, err)

	sess, err := rig.memory.Session(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, rig.store.DeleteTranscript(ctx, sess.ContextHandle))

	reply, err := rig.agent.Run(ctx, "s1", "do you remember me?")
	require.NoError(t, err)
	assert.Contains(t, reply, "name: Sarah")

	recovered, err := rig.memory.Session(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ContextHandle, recovered.ContextHandle)
	assert.Equal(t, 1, recovered.ResetCount)
}

type brokenEngine struct{}

func (brokenEngine) Initialize(context.Context, core.MemoryBundle) (string, error) {
	return "", errors.New("model offline")
}

func (brokenEngine) Send(context.Context, string, string) (string, error) {
	return "", errors.New("model offline")
}

func (brokenEngine) Release(context.Context, string) error {
	return nil
}

func TestRunSurfacesInitFailure(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	store := inmem.New(cfg.Policy())
	mem, err := memory.NewMemory(cfg, store, brokenEngine{}, memory.NewPatternExtractor(), memory.NewKeywordAnalyzer(), nil)
	require.NoError(t, err)

	a := NewAgent(mem, brokenEngine{}, nil)
	_, err = a.Run(context.Background(), "s1", "My name is Sarah")
	assert.ErrorIs(t, err, core.ErrEngineInit)

	facts, err := mem.ListFacts(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}
