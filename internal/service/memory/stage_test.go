package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandevgo/recall/internal/core"
)

func TestDetectStage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		total int
		want  core.Stage
	}{
		{name: "first message", text: "hi there, I feel great", total: 1, want: core.StageGreeting},
		{name: "second message", text: "I work at Google", total: 2, want: core.StageGreeting},
		{name: "emotional", text: "Honestly I feel lost lately", total: 5, want: core.StageDeepConversation},
		{name: "future", text: "What do you think about the future?", total: 3, want: core.StageDeepConversation},
		{name: "topic", text: "I started pottery classes", total: 3, want: core.StageTopicContinuation},
		{name: "closing wins early", text: "ok bye!", total: 1, want: core.StageClosing},
		{name: "closing phrase", text: "I have to go now, see you tomorrow", total: 9, want: core.StageClosing},
		{name: "substring is not a word", text: "I use a lifeline", total: 4, want: core.StageTopicContinuation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStage(tt.text, tt.total))
		})
	}
}

func TestNextTrust(t *testing.T) {
	assert.InDelta(t, 0.32, NextTrust(core.InitialTrust, core.StageGreeting), 1e-9)
	assert.InDelta(t, 0.37, NextTrust(core.InitialTrust, core.StageDeepConversation), 1e-9)
	assert.Equal(t, 1.0, NextTrust(0.99, core.StageDeepConversation))
}
