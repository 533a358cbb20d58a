package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/auth"
	"github.com/Goofygiraffe06/blaze/internal/conversation"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/store"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var errUnavailable = errors.New("completion service unavailable")

// fakeAdapter accepts every reply and extracts it verbatim unless told otherwise.
type fakeAdapter struct {
	mu sync.Mutex

	reject      map[string]bool
	extract     map[string]string
	failExtract bool
	failAsk     bool

	askCalls     int
	intentCalls  int
	extractCalls int
	questions    []string
	validatedAt  []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{reject: map[string]bool{}, extract: map[string]string{}}
}

func (f *fakeAdapter) AskQuestion(_ context.Context, instruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askCalls++
	if f.failAsk {
		return agent.FallbackQuestion, errUnavailable
	}
	q := "Q: " + instruction
	f.questions = append(f.questions, q)
	return q, nil
}

func (f *fakeAdapter) IsIntentSatisfied(_ context.Context, question, answer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentCalls++
	f.validatedAt = append(f.validatedAt, question)
	return !f.reject[answer]
}

func (f *fakeAdapter) Extract(_ context.Context, _, answer string, _ agent.Kind) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if f.failExtract {
		return nil, false
	}
	if v, ok := f.extract[answer]; ok {
		return v, true
	}
	return answer, true
}

func (f *fakeAdapter) set(fn func(a *fakeAdapter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// lastValidatedAgainst returns the question the latest reply was checked against.
func (f *fakeAdapter) lastValidatedAgainst() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.validatedAt) == 0 {
		return ""
	}
	return f.validatedAt[len(f.validatedAt)-1]
}

func (f *fakeAdapter) validationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intentCalls + f.extractCalls
}

// recorder collects emitted frames.
type recorder struct {
	mu     sync.Mutex
	frames []models.Outbound
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) Emit(_ context.Context, frame models.Outbound) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *recorder) all() []models.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Outbound(nil), r.frames...)
}

func (r *recorder) last(t *testing.T) models.Outbound {
	t.Helper()
	frames := r.all()
	require.NotEmpty(t, frames, "no frame emitted")
	return frames[len(frames)-1]
}

// recordingCodes remembers the last code written so tests can redeem it.
type recordingCodes struct {
	store.CodeStore
	mu   sync.Mutex
	last string
}

func (c *recordingCodes) CreateCode(ctx context.Context, code models.OneTimeCode) error {
	c.mu.Lock()
	c.last = code.Code
	c.mu.Unlock()
	return c.CodeStore.CreateCode(ctx, code)
}

func (c *recordingCodes) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

type fixtureConfig struct {
	codeTTL time.Duration
	wrap    func(conversation.Gateway) conversation.Gateway
	policy  conversation.Policy
}

type fixture struct {
	engine  *conversation.Engine
	adapter *fakeAdapter
	users   *store.SQLiteStore
	codes   *recordingCodes
	tokens  *auth.Issuer
	out     *recorder
}

func newFixture(t *testing.T, opts ...func(*fixtureConfig)) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		codeTTL: 30 * time.Minute,
		policy:  conversation.Policy{PasswordMinLength: 6},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	users, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	tokens, err := auth.NewIssuer([]byte(testSecret), "blaze-test", time.Minute)
	require.NoError(t, err)

	codes := &recordingCodes{CodeStore: users}
	var gw conversation.Gateway = &conversation.Services{
		Users:      users,
		Codes:      codes,
		Tokens:     tokens,
		CodeTTL:    cfg.codeTTL,
		CodeLength: 6,
	}
	if cfg.wrap != nil {
		gw = cfg.wrap(gw)
	}

	adapter := newFakeAdapter()
	return &fixture{
		engine:  conversation.NewEngine(adapter, gw, conversation.WithPolicy(cfg.policy)),
		adapter: adapter,
		users:   users,
		codes:   codes,
		tokens:  tokens,
		out:     newRecorder(),
	}
}

func (f *fixture) start(t *testing.T, flow conversation.Flow) *conversation.Session {
	t.Helper()
	sess := conversation.NewSession(flow)
	f.engine.Start(context.Background(), sess, f.out)
	return sess
}

// reply hands one reply to step and returns the step the emitted frame names, with the frame.
func (f *fixture) reply(t *testing.T, sess *conversation.Session, step, response string) (string, models.Outbound) {
	t.Helper()
	return f.send(t, sess, step, models.InboundPayload{Response: response})
}

func (f *fixture) send(t *testing.T, sess *conversation.Session, step string, in models.InboundPayload) (string, models.Outbound) {
	t.Helper()
	next := f.engine.Handle(context.Background(), sess, step, in, f.out)
	return next, f.out.last(t)
}

// registerUntilOTP runs the registration flow up to the code question.
func (f *fixture) registerUntilOTP(t *testing.T, name, email, password string) (*conversation.Session, models.SuccessPayload) {
	t.Helper()
	sess := f.start(t, conversation.Registration)
	_, frame := f.reply(t, sess, conversation.StepFullName, name)
	askOf(t, frame)
	_, frame = f.reply(t, sess, conversation.StepEmail, email)
	askOf(t, frame)
	next, frame := f.reply(t, sess, conversation.StepPassword, password)
	require.Equal(t, conversation.StepOTP, next)
	return sess, successOf(t, frame)
}

func (f *fixture) seedUser(t *testing.T, name, email, password string) models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u, err := f.users.CreateUser(context.Background(), models.User{FullName: name, Email: strings.ToLower(email), PasswordHash: hash})
	require.NoError(t, err)
	return u
}

func askOf(t *testing.T, frame models.Outbound) models.AskPayload {
	t.Helper()
	require.Equal(t, models.EventAsk, frame.Event)
	p, ok := frame.Data.(models.AskPayload)
	require.True(t, ok, "unexpected payload %T", frame.Data)
	return p
}

func errorOf(t *testing.T, frame models.Outbound) models.ErrorPayload {
	t.Helper()
	require.Equal(t, models.EventError, frame.Event)
	p, ok := frame.Data.(models.ErrorPayload)
	require.True(t, ok, "unexpected payload %T", frame.Data)
	return p
}

func successOf(t *testing.T, frame models.Outbound) models.SuccessPayload {
	t.Helper()
	require.Equal(t, models.EventSuccess, frame.Event, "frame: %+v", frame.Data)
	p, ok := frame.Data.(models.SuccessPayload)
	require.True(t, ok, "unexpected payload %T", frame.Data)
	return p
}
