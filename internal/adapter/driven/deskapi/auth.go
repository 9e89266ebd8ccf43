package deskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// Login posts form-encoded credentials to /login. 4xx replies are reported as
// model.ErrAuthenticationFailed; 5xx and transport failures are returned as-is.
// Login is never retried.
func (c *Client) Login(ctx context.Context, in model.LoginInput) (*model.Credential, error) {
	form := url.Values{
		"username": {in.Username},
		"password": {in.Password},
	}

	u := c.endpoint("login")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	data, _, err := c.send(req)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrAuthenticationFailed, err)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", model.ErrAuthenticationFailed)
	}
	return &cred, nil
}

// Register posts a new account to /register. It does not log in.
func (c *Client) Register(ctx context.Context, in model.Registration) (*model.User, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}

	u := c.endpoint("register")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	data, _, err := c.send(req)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRegistrationFailed, err)
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decoding register response: %w", err)
	}
	return &user, nil
}

// CurrentUser fetches the account that owns accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*model.User, error) {
	// The backend routes the user-info endpoint with a trailing slash.
	u := c.endpoint("users", "me")
	u.Path += "/"

	data, _, err := c.read(ctx, u, accessToken)
	if err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decoding current user: %w", err)
	}
	return &user, nil
}

func isClientError(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
