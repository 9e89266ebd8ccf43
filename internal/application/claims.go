package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// claimsParser only decodes segments. The console never holds the backend's
// signing key, so neither the header nor the signature is checked here; the
// backend verifies both on every request.
var claimsParser = jwt.NewParser()

// DecodeClaims reads the payload segment of an access token. A token that is
// malformed, or whose payload has no exp claim, fails with model.ErrTokenDecode.
func DecodeClaims(accessToken string) (model.Claims, error) {
	if accessToken == "" {
		return model.Claims{}, fmt.Errorf("%w: empty token", model.ErrTokenDecode)
	}

	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return model.Claims{}, fmt.Errorf("%w: want 3 segments, got %d", model.ErrTokenDecode, len(parts))
	}
	payload, err := claimsParser.DecodeSegment(parts[1])
	if err != nil {
		return model.Claims{}, fmt.Errorf("%w: payload: %w", model.ErrTokenDecode, err)
	}

	var registered jwt.RegisteredClaims
	if err := json.Unmarshal(payload, &registered); err != nil {
		return model.Claims{}, fmt.Errorf("%w: payload: %w", model.ErrTokenDecode, err)
	}
	if registered.ExpiresAt == nil {
		return model.Claims{}, fmt.Errorf("%w: no exp claim", model.ErrTokenDecode)
	}

	claims := model.Claims{
		Subject:   registered.Subject,
		ExpiresAt: registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}
