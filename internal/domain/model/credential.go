package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credential is the cached result of a successful login. AccessToken is sent
// as a bearer token on every resource call. Extra preserves any other fields
// the backend issued so they survive a save/restore round trip.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Extra        map[string]any
}

// credentialJSON mirrors the backend's token response body.
type credentialJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// MarshalJSON writes the known token fields plus Extra as one flat object.
func (c Credential) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["access_token"] = c.AccessToken
	out["token_type"] = c.TokenType
	if c.RefreshToken != "" {
		out["refresh_token"] = c.RefreshToken
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known token fields and keeps the rest in Extra.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var known credentialJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}
	delete(all, "access_token")
	delete(all, "refresh_token")
	delete(all, "token_type")
	if len(all) == 0 {
		all = nil
	}

	*c = Credential{
		AccessToken:  known.AccessToken,
		RefreshToken: known.RefreshToken,
		TokenType:    known.TokenType,
		Extra:        all,
	}
	return nil
}

// Clone returns a copy that shares no mutable state with c.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Extra != nil {
		cp.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// Claims holds the fields decoded from an access token's payload segment.
// It is derived on demand and never persisted.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// LoginInput is the identifier/secret pair submitted to the login endpoint.
type LoginInput struct {
	Username string
	Password string
}

// Registration is the new-account payload submitted to the register endpoint.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

// User is the account record returned by the register and user-info endpoints.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
}
