package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/utils"
	"github.com/Goofygiraffe06/blaze/store"
)

// Login events, in order.
const (
	EventLogin        = "login"
	StepLoginEmail    = "loginEmail"
	StepLoginPassword = "loginPassword"
)

const loginIntro = "Welcome the user back to DateConnect as Blaze, their AI guide, " +
	"and ask for the email address they registered with."

func (e *Engine) loginFlow() *FlowDef {
	return newFlowDef(Login, EventLogin, loginIntro,
		&Step{
			Name:  StepLoginEmail,
			Field: "email",
			Kind:  agent.KindString,
			Prompt: func(map[string]any) string {
				return "Ask the user for the email address they registered with."
			},
			Missing:   "Generate an error message asking the user to provide their email address.",
			Invalid:   invalidEmailInstruction,
			Normalize: normalizeEmail,
			OnSuccess: e.resolveAccount,
		},
		&Step{
			Name:   StepLoginPassword,
			Field:  "password",
			Kind:   agent.KindString,
			Secret: true,
			Prompt: func(c map[string]any) string {
				return fmt.Sprintf("Ask the user for the password of their account %v.", c["email"])
			},
			Missing:   "Generate an error message asking the user to provide their password.",
			Invalid:   "Generate an error message explaining that the reply did not contain a password, and ask the user for it again.",
			OnSuccess: e.checkPassword,
		},
	)
}

func (e *Engine) resolveAccount(ctx context.Context, s *Session, r Reply) NextAction {
	email := r.String()
	user, err := e.gateway.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		logging.InfoLog("Login: unknown email [%s]", utils.HashEmail(email))
		return Retry(StepLoginEmail, "Generate an error message saying no account was found for that email address, "+
			"and ask the user for the email they registered with.")
	}
	if err != nil {
		logging.ErrorLog("Login: lookup failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepLoginEmail, tryAgainInstruction)
	}
	s.setUser(user)
	return AskNext(StepLoginPassword)
}

func (e *Engine) checkPassword(ctx context.Context, s *Session, r Reply) NextAction {
	user, ok := s.User()
	if !ok {
		return Fail("Generate a short message asking the user to start the login again.")
	}
	if !e.gateway.ComparePassword(ctx, user.PasswordHash, r.String()) {
		logging.InfoLog("Login: wrong password [%s]", utils.HashEmail(user.Email))
		return Retry(StepLoginPassword, "Generate an error message for an incorrect password, and ask the user to try again.")
	}
	token, err := e.gateway.IssueToken(user.ID)
	if err != nil {
		logging.ErrorLog("Login: token issue failed [%s]: %v", utils.HashEmail(user.Email), err)
		return Fail("Generate a generic error message for a failed login attempt.")
	}
	logging.InfoLog("Login: success [%s]", utils.HashEmail(user.Email))

	instruction := fmt.Sprintf("Generate a personalized welcome back message for %s, confirming they are now logged in.", user.FullName)
	return Complete(instruction, "Welcome back! You are now logged in.", user, token, "")
}
