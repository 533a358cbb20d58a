package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/internal/utils"
	"github.com/Goofygiraffe06/blaze/store"
	"github.com/go-playground/validator/v10"
)

// Registration events, in order.
const (
	EventRegister = "register"
	StepFullName  = "fullname"
	StepEmail     = "email"
	StepPassword  = "password"
	StepOTP       = "otp"
)

var validate = validator.New()

const (
	registrationIntro = "Introduce yourself as Blaze, the AI guide for DateConnect, a dating platform. " +
		"Welcome the user warmly and ask for their full name to begin their registration."

	emailTakenInstruction = "Generate an error message saying the email address has already been taken, " +
		"and ask the user to provide another one."
	invalidEmailInstruction = "Generate an error message for an invalid email address, and ask the user to provide a valid one."
	tryAgainInstruction     = "Generate a short message saying we could not process that right now, and ask the user to try again."
	registrationFailed      = "Generate a generic error message for a failed registration attempt."
)

// normalizeEmail lower-cases and trims an extracted address, then checks its shape.
func normalizeEmail(v any) (any, string, bool) {
	s, _ := v.(string)
	email := strings.ToLower(strings.TrimSpace(s))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return nil, invalidEmailInstruction, false
	}
	return email, "", true
}

func nonEmptyString(instruction string) func(v any) (any, string, bool) {
	return func(v any) (any, string, bool) {
		s, _ := v.(string)
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, instruction, false
		}
		return s, "", true
	}
}

func (e *Engine) weakPassword() string {
	return fmt.Sprintf("Generate an error message for a weak password (less than %d characters), "+
		"and ask the user to provide a stronger password.", e.policy.PasswordMinLength)
}

func (e *Engine) registrationFlow() *FlowDef {
	return newFlowDef(Registration, EventRegister, registrationIntro,
		&Step{
			Name:  StepFullName,
			Field: "fullname",
			Kind:  agent.KindString,
			Prompt: func(map[string]any) string {
				return "Ask the user for their full name."
			},
			Missing:   "Generate an error message asking the user to provide their full name.",
			Invalid:   "Generate an error message explaining that the reply did not include a name, and ask the user for their full name again.",
			Normalize: nonEmptyString("Generate an error message asking the user to provide their full name."),
			OnSuccess: func(context.Context, *Session, Reply) NextAction {
				return AskNext(StepEmail)
			},
		},
		&Step{
			Name:  StepEmail,
			Field: "email",
			Kind:  agent.KindString,
			Prompt: func(c map[string]any) string {
				return fmt.Sprintf("Now that we know the user's name is %v, ask them for their email address in a warm and welcoming manner.", c["fullname"])
			},
			Missing:   "Generate an error message asking the user to provide their email address.",
			Invalid:   invalidEmailInstruction,
			Normalize: normalizeEmail,
			OnSuccess: e.checkEmailAvailable,
		},
		&Step{
			Name:   StepPassword,
			Field:  "password",
			Kind:   agent.KindString,
			Secret: true,
			Prompt: func(c map[string]any) string {
				return fmt.Sprintf("Ask %v to create a password for their new account. "+
					"Mention it must be at least %d characters long.", c["fullname"], e.policy.PasswordMinLength)
			},
			Missing:   "Generate an error message asking the user to provide a password.",
			Invalid:   "Generate an error message explaining that the reply did not contain a password, and ask the user to create one.",
			Precheck:  e.passwordLongEnough,
			Normalize: e.normalizePassword,
			OnSuccess: e.createAccount,
		},
		&Step{
			Name:   StepOTP,
			Field:  "otp",
			Kind:   agent.KindString,
			Secret: true,
			Prompt: func(c map[string]any) string {
				return fmt.Sprintf("Ask the user for the verification code sent to %v.", c["email"])
			},
			Input: func(p models.InboundPayload) string {
				if strings.TrimSpace(p.OTP) != "" {
					return p.OTP
				}
				return p.Response
			},
			Missing:   "Generate an error message for an invalid otp, and ask the user to provide a valid one.",
			Invalid:   "Generate an error message for an invalid otp, and ask the user to provide a valid one.",
			Normalize: normalizeCode,
			OnSuccess: e.verifyCode,
		},
	)
}

func (e *Engine) passwordLongEnough(raw string) (string, bool) {
	if len([]rune(raw)) < e.policy.PasswordMinLength {
		return e.weakPassword(), false
	}
	return "", true
}

func (e *Engine) normalizePassword(v any) (any, string, bool) {
	pw, _ := v.(string)
	if len([]rune(pw)) < e.policy.PasswordMinLength {
		return nil, e.weakPassword(), false
	}
	return pw, "", true
}

func normalizeCode(v any) (any, string, bool) {
	s, _ := v.(string)
	code := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if code == "" {
		return nil, "Generate an error message for an invalid otp, and ask the user to provide a valid one.", false
	}
	return code, "", true
}

func (e *Engine) checkEmailAvailable(ctx context.Context, s *Session, r Reply) NextAction {
	email := r.String()
	_, err := e.gateway.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		logging.InfoLog("Registration: email already registered [%s]", utils.HashEmail(email))
		return Retry(StepEmail, emailTakenInstruction)
	case errors.Is(err, store.ErrNotFound):
		return AskNext(StepPassword)
	default:
		logging.ErrorLog("Registration: email lookup failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepEmail, tryAgainInstruction)
	}
}

// createAccount hashes the password, persists the user and its code, and
// answers with the created account and a session token.
func (e *Engine) createAccount(ctx context.Context, s *Session, r Reply) NextAction {
	fullName, email := s.String("fullname"), s.String("email")

	hash, err := e.gateway.HashPassword(ctx, r.String())
	if err != nil {
		logging.ErrorLog("Registration: hashing failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepPassword, tryAgainInstruction)
	}
	s.set("password", hash)

	user, err := e.gateway.CreateUser(ctx, fullName, email, hash)
	if errors.Is(err, store.ErrUserExists) {
		logging.InfoLog("Registration: email claimed before write [%s]", utils.HashEmail(email))
		s.unset("email")
		return Retry(StepEmail, emailTakenInstruction)
	}
	if err != nil {
		logging.ErrorLog("Registration: user write failed [%s]: %v", utils.HashEmail(email), err)
		return Fail(registrationFailed)
	}
	s.setUser(user)

	if _, err := e.gateway.CreateOneTimeCode(ctx, user); err != nil {
		logging.ErrorLog("Registration: code write failed [%s]: %v", utils.HashEmail(email), err)
		return Fail(registrationFailed)
	}
	token, err := e.gateway.IssueToken(user.ID)
	if err != nil {
		logging.ErrorLog("Registration: token issue failed [%s]: %v", utils.HashEmail(email), err)
		return Fail(registrationFailed)
	}

	instruction := fmt.Sprintf("Generate a personalized success message for the new user %s, confirming their account "+
		"was created with the email %s. Tell them a verification code was sent to that email and ask them to enter it.",
		fullName, email)
	fallback := "Your account has been created. Please enter the verification code we sent to your email."
	return Complete(instruction, fallback, user, token, StepOTP)
}

// verifyCode redeems a code for the email in the payload, or for the
// session's email when the payload has none.
func (e *Engine) verifyCode(ctx context.Context, s *Session, r Reply) NextAction {
	email := strings.ToLower(strings.TrimSpace(r.Payload.Email))
	if email == "" {
		email = s.String("email")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return Retry(StepOTP, "Generate an error message for an invalid email address, and ask the user to provide a valid one along with their otp.")
	}

	user, err := e.gateway.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Retry(StepOTP, "Generate an error message saying no account was found for that email address, and ask the user to check it.")
	}
	if err != nil {
		logging.ErrorLog("Registration: verify lookup failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepOTP, tryAgainInstruction)
	}

	code := r.String()
	if _, err := e.gateway.FindUnverifiedCode(ctx, code, user.ID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.ErrorLog("Registration: code lookup failed [%s]: %v", utils.HashEmail(email), err)
			return Retry(StepOTP, tryAgainInstruction)
		}
		logging.InfoLog("Registration: code rejected [%s]", utils.HashEmail(email))
		return Retry(StepOTP, fmt.Sprintf("Generate an error message for an invalid or expired otp, "+
			"and ask the user to provide the code sent to %s.", email))
	}

	if err := e.gateway.MarkCodeVerified(ctx, code, user.ID); err != nil {
		logging.ErrorLog("Registration: code update failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepOTP, tryAgainInstruction)
	}
	if err := e.gateway.MarkUserVerified(ctx, email); err != nil {
		logging.ErrorLog("Registration: user update failed [%s]: %v", utils.HashEmail(email), err)
		return Retry(StepOTP, tryAgainInstruction)
	}
	user.IsVerified = true
	s.setUser(user)
	logging.InfoLog("Registration: email verified [%s]", utils.HashEmail(email))

	instruction := fmt.Sprintf("Generate a personalized success message for the new user %s, "+
		"confirming their email %s has been verified and welcoming them to DateConnect.", user.FullName, email)
	return Complete(instruction, "Your email has been verified. Welcome aboard!", user, "", "")
}
