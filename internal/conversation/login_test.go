package conversation_test

import (
	"testing"

	"github.com/Goofygiraffe06/blaze/internal/conversation"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, conversation.Login)
	assert.Equal(t, conversation.StepLoginEmail, askOf(t, f.out.last(t)).NextEvent)

	next, frame := f.reply(t, sess, conversation.StepLoginEmail, "ghost@example.com")
	assert.Equal(t, conversation.StepLoginEmail, next)
	assert.Equal(t, conversation.StepLoginEmail, errorOf(t, frame).NextEvent)

	for _, fr := range f.out.all() {
		if fr.Event == models.EventAsk {
			assert.NotEqual(t, conversation.StepLoginPassword, fr.Data.(models.AskPayload).NextEvent,
				"no password question for an unknown account")
		}
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(t, "Tobi", "tobi@example.com", "s3cret!!")
	sess := f.start(t, conversation.Login)

	next, frame := f.reply(t, sess, conversation.StepLoginEmail, "TOBI@example.com")
	require.Equal(t, conversation.StepLoginPassword, next)
	assert.Equal(t, conversation.StepLoginPassword, askOf(t, frame).NextEvent)

	next, frame = f.reply(t, sess, conversation.StepLoginPassword, "s3cret!!")
	assert.Empty(t, next)
	success := successOf(t, frame)
	assert.Empty(t, success.NextEvent)
	require.NotEmpty(t, success.Token)

	subject, err := f.tokens.Verify(success.Token)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, subject)
	user, ok := success.Data.(models.User)
	require.True(t, ok)
	assert.Equal(t, "tobi@example.com", user.Email)
	assert.True(t, sess.Done())
}

func TestLogin_WrongPasswordRetries(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Tobi", "tobi@example.com", "s3cret!!")
	sess := f.start(t, conversation.Login)
	f.reply(t, sess, conversation.StepLoginEmail, "tobi@example.com")

	next, frame := f.reply(t, sess, conversation.StepLoginPassword, "wrong-one")
	assert.Equal(t, conversation.StepLoginPassword, next)
	e := errorOf(t, frame)
	assert.Equal(t, conversation.StepLoginPassword, e.NextEvent)
	assert.False(t, sess.Done())

	next, frame = f.reply(t, sess, conversation.StepLoginPassword, "s3cret!!")
	assert.Empty(t, next)
	successOf(t, frame)
}

func TestLogin_StepsInOrder(t *testing.T) {
	f := newFixture(t)
	def, ok := f.engine.Flow(conversation.Login)
	require.True(t, ok)
	assert.Equal(t, conversation.EventLogin, def.StartEvent)
	assert.Equal(t, []string{"loginEmail", "loginPassword"}, def.Steps())
}
