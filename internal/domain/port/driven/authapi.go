package driven

import (
	"context"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// AuthAPI defines the driven port for the backend's account endpoints.
type AuthAPI interface {
	// Login submits form-encoded credentials to POST /login. A rejection is
	// reported as model.ErrAuthenticationFailed.
	Login(ctx context.Context, in model.LoginInput) (*model.Credential, error)

	// Register submits a new account to POST /register. A rejection is
	// reported as model.ErrRegistrationFailed.
	Register(ctx context.Context, in model.Registration) (*model.User, error)

	// CurrentUser fetches GET /users/me/ for the bearer of accessToken.
	CurrentUser(ctx context.Context, accessToken string) (*model.User, error)
}
