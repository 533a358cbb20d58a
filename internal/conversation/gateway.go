package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/auth"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/mail"
	"github.com/Goofygiraffe06/blaze/internal/manager"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/internal/utils"
	"github.com/Goofygiraffe06/blaze/store"
	"github.com/google/uuid"
)

// Gateway is everything the flows need from storage, crypto and mail.
// Lookups that match nothing return store.ErrNotFound.
type Gateway interface {
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, fullName, email, passwordHash string) (models.User, error)
	MarkUserVerified(ctx context.Context, email string) error

	HashPassword(ctx context.Context, password string) (string, error)
	ComparePassword(ctx context.Context, hash, password string) bool

	CreateOneTimeCode(ctx context.Context, user models.User) (models.OneTimeCode, error)
	FindUnverifiedCode(ctx context.Context, code, userID string) (models.OneTimeCode, error)
	MarkCodeVerified(ctx context.Context, code, userID string) error

	IssueToken(userID string) (string, error)
}

// Services is the production Gateway. Storage calls run on the DB pool,
// bcrypt on the crypto pool and code delivery on the mail pool.
type Services struct {
	Users  store.UserStore
	Codes  store.CodeStore
	Tokens *auth.Issuer
	Mailer *mail.Mailer
	Work   *manager.WorkManager

	CodeTTL    time.Duration
	CodeLength int

	now func() time.Time
}

var _ Gateway = (*Services)(nil)

func (s *Services) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Services) db(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Work == nil {
		return fn(ctx)
	}
	return s.Work.RunDB(ctx, fn)
}

func (s *Services) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.Users.FindUserByEmail(ctx, email)
		return err
	})
	return user, err
}

func (s *Services) CreateUser(ctx context.Context, fullName, email, passwordHash string) (models.User, error) {
	var user models.User
	err := s.db(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.Users.CreateUser(ctx, models.User{
			ID:           uuid.NewString(),
			FullName:     fullName,
			Email:        email,
			PasswordHash: passwordHash,
			CreatedAt:    s.clock(),
		})
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	logging.InfoLog("Registration: user created [%s][%s]", utils.HashEmail(email), utils.HashName(fullName))
	return user, nil
}

func (s *Services) MarkUserVerified(ctx context.Context, email string) error {
	return s.db(ctx, func(ctx context.Context) error {
		return s.Users.MarkUserVerified(ctx, email)
	})
}

func (s *Services) HashPassword(ctx context.Context, password string) (string, error) {
	if s.Work == nil {
		return auth.HashPassword(password)
	}
	var hash string
	err := s.Work.RunCrypto(ctx, func(context.Context) error {
		var err error
		hash, err = auth.HashPassword(password)
		return err
	})
	return hash, err
}

func (s *Services) ComparePassword(ctx context.Context, hash, password string) bool {
	if s.Work == nil {
		return auth.ComparePassword(hash, password)
	}
	var ok bool
	if err := s.Work.RunCrypto(ctx, func(context.Context) error {
		ok = auth.ComparePassword(hash, password)
		return nil
	}); err != nil {
		logging.WarnLog("Login: password compare not run: %v", err)
		return false
	}
	return ok
}

// CreateOneTimeCode generates and persists a code for user, then schedules
// its delivery. Delivery failures are logged and never fail the flow.
func (s *Services) CreateOneTimeCode(ctx context.Context, user models.User) (models.OneTimeCode, error) {
	value, err := auth.GenerateCode(s.CodeLength)
	if err != nil {
		return models.OneTimeCode{}, err
	}
	now := s.clock()
	code := models.OneTimeCode{
		UserID:    user.ID,
		Code:      value,
		ExpiresAt: now.Add(s.CodeTTL),
		CreatedAt: now,
	}
	if err := s.db(ctx, func(ctx context.Context) error {
		return s.Codes.CreateCode(ctx, code)
	}); err != nil {
		return models.OneTimeCode{}, err
	}

	s.deliver(user, value)
	return code, nil
}

func (s *Services) deliver(user models.User, code string) {
	if !s.Mailer.Enabled() {
		logging.DebugLog("Registration: mail disabled, code not sent [%s]", utils.HashEmail(user.Email))
		return
	}
	send := func(context.Context) {
		if err := s.Mailer.SendCode(user.Email, user.FullName, code, s.CodeTTL); err != nil {
			logging.ErrorLog("Registration: code delivery failed [%s]: %v", utils.HashEmail(user.Email), err)
		}
	}
	if s.Work == nil {
		go send(context.Background())
		return
	}
	if err := s.Work.SubmitMail(send); err != nil {
		logging.ErrorLog("Registration: code delivery not queued [%s]: %v", utils.HashEmail(user.Email), err)
	}
}

func (s *Services) FindUnverifiedCode(ctx context.Context, code, userID string) (models.OneTimeCode, error) {
	var otp models.OneTimeCode
	err := s.db(ctx, func(ctx context.Context) error {
		var err error
		otp, err = s.Codes.FindUnverifiedCode(ctx, code, userID)
		return err
	})
	if err != nil {
		return models.OneTimeCode{}, err
	}
	if otp.Expired(s.clock()) {
		return models.OneTimeCode{}, store.ErrNotFound
	}
	return otp, nil
}

func (s *Services) MarkCodeVerified(ctx context.Context, code, userID string) error {
	return s.db(ctx, func(ctx context.Context) error {
		return s.Codes.MarkCodeVerified(ctx, code, userID)
	})
}

var errNoIssuer = errors.New("token issuer not configured")

func (s *Services) IssueToken(userID string) (string, error) {
	if s.Tokens == nil {
		return "", errNoIssuer
	}
	return s.Tokens.Issue(userID)
}
