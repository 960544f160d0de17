package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type recordingBot struct {
	sent []string
	err  error
}

func (r *recordingBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.sent = append(r.sent, what.(string))
	return &tele.Message{}, nil
}

func TestSendMarkdown(t *testing.T) {
	bot := &recordingBot{}
	s := newSender(bot)

	require.NoError(t, s.sendMarkdown(context.Background(), &tele.Chat{ID: 1}, "**Hi** Sarah"))
	assert.Equal(t, []string{"<strong>Hi</strong> Sarah"}, bot.sent)
}

func TestSendMarkdownChunksLongReplies(t *testing.T) {
	bot := &recordingBot{}
	s := newSender(bot)

	line := strings.Repeat("a", 100)
	md := strings.Repeat(line+"\n\n", 90)

	require.NoError(t, s.sendMarkdown(context.Background(), &tele.Chat{ID: 1}, md))
	assert.Greater(t, len(bot.sent), 1)
	for _, chunk := range bot.sent {
		assert.LessOrEqual(t, len(chunk), maxTelegramMsgLen)
	}
}

func TestSendMarkdownSkipsEmpty(t *testing.T) {
	bot := &recordingBot{}
	require.NoError(t, newSender(bot).sendMarkdown(context.Background(), &tele.Chat{ID: 1}, "   "))
	assert.Empty(t, bot.sent)
}

func TestSendMarkdownError(t *testing.T) {
	bot := &recordingBot{err: errors.New("flood wait")}
	err := newSender(bot).sendMarkdown(context.Background(), &tele.Chat{ID: 1}, "hi")
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "telegram-42", SessionID(42))
}
