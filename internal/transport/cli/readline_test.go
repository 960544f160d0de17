package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type scriptedRunner struct {
	inputs []string
	err    error
}

func (s *scriptedRunner) Run(ctx context.Context, sessionID, input string) (string, error) {
	s.inputs = append(s.inputs, sessionID+":"+input)
	if s.err != nil {
		return "", s.err
	}
	return "echo " + input, nil
}

func TestTurn(t *testing.T) {
	runner := &scriptedRunner{}
	r := &ReadLine{agent: runner, sessionID: DefaultSessionID}
	var out bytes.Buffer

	assert.False(t, r.turn(context.Background(), &out, "  hello  "))
	assert.False(t, r.turn(context.Background(), &out, "   "))
	assert.True(t, r.turn(context.Background(), &out, "exit"))

	assert.Equal(t, []string{"cli-local:hello"}, runner.inputs)
	assert.Equal(t, "echo hello\n", out.String())
}

func TestTurnReportsErrors(t *testing.T) {
	r := &ReadLine{agent: &scriptedRunner{err: errors.New("context initialization failed")}, sessionID: "s"}
	var out bytes.Buffer

	assert.False(t, r.turn(context.Background(), &out, "hi"))
	assert.Equal(t, "Error: context initialization failed\n", out.String())
}
