package ephemeral

import (
	"context"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/store"
)

// CodeStore keeps one-time codes in process memory until they expire.
// Codes do not survive a restart.
type CodeStore struct {
	core *coreStore[models.OneTimeCode]
}

var _ store.CodeStore = (*CodeStore)(nil)

func NewCodeStore() *CodeStore {
	return &CodeStore{core: newCoreStore[models.OneTimeCode](time.Minute)}
}

func codeKey(code, userID string) string {
	return userID + ":" + code
}

func (s *CodeStore) CreateCode(_ context.Context, code models.OneTimeCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.core.now()
	}
	// A code created already expired is stored dead and never found.
	return s.core.set(codeKey(code.Code, code.UserID), code, code.ExpiresAt.Sub(code.CreatedAt))
}

func (s *CodeStore) FindUnverifiedCode(_ context.Context, code, userID string) (models.OneTimeCode, error) {
	otp, ok := s.core.get(codeKey(code, userID))
	if !ok || otp.Verified {
		return models.OneTimeCode{}, store.ErrNotFound
	}
	return otp, nil
}

func (s *CodeStore) MarkCodeVerified(_ context.Context, code, userID string) error {
	changed := s.core.update(codeKey(code, userID), func(otp models.OneTimeCode) (models.OneTimeCode, bool) {
		if otp.Verified {
			return otp, false
		}
		otp.Verified = true
		return otp, true
	})
	if !changed {
		return store.ErrNotFound
	}
	return nil
}

// Close stops the background cleanup.
func (s *CodeStore) Close() error {
	s.core.close()
	return nil
}
