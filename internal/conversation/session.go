package conversation

import (
	"maps"
	"sync"

	"github.com/Goofygiraffe06/blaze/internal/models"
)

// Flow names a fixed step sequence.
type Flow string

const (
	Registration Flow = "registration"
	Login        Flow = "login"
)

// Session accumulates one flow's collected fields on one connection.
// Only the step currently holding the flow's listener mutates it.
type Session struct {
	mu sync.RWMutex

	flow            Flow
	collected       map[string]any
	pendingQuestion string
	currentStep     string
	attempts        map[string]int
	user            *models.User
	done            bool
}

// NewSession creates an empty session for flow.
func NewSession(flow Flow) *Session {
	return &Session{
		flow:      flow,
		collected: make(map[string]any),
		attempts:  make(map[string]int),
	}
}

func (s *Session) Flow() Flow { return s.flow }

// PendingQuestion is the text the next reply is validated against.
func (s *Session) PendingQuestion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingQuestion
}

// CurrentStep is the step awaiting a reply.
func (s *Session) CurrentStep() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStep
}

// Done reports whether the flow reached a terminal event.
func (s *Session) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Value returns a collected field.
func (s *Session) Value(field string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.collected[field]
	return v, ok
}

// String returns a collected field as a string, or "".
func (s *Session) String(field string) string {
	v, _ := s.Value(field)
	str, _ := v.(string)
	return str
}

// Collected returns a copy of the collected fields.
func (s *Session) Collected() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.collected)
}

// User returns the account the flow resolved or created.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Session) set(field string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collected[field] = v
}

func (s *Session) unset(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collected, field)
}

func (s *Session) setUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// await records the text just emitted and the step that will answer it.
func (s *Session) await(question, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentStep != step {
		s.attempts[step] = 0
	}
	s.pendingQuestion = question
	s.currentStep = step
}

// fail counts a rejected reply for step and returns the running total.
func (s *Session) fail(step string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[step]++
	return s.attempts[step]
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.currentStep = ""
}
