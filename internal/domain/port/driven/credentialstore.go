package driven

import (
	"context"
	"errors"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// DESKBOOK_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DESKBOOK_SECRET_KEY")

// CredentialStore defines the driven port for the persistent key/value slot
// that holds the serialized session. The adapter layer is responsible for
// encryption/decryption; this interface operates on plaintext values.
type CredentialStore interface {
	// Set stores or replaces the value for (service, key).
	// Returns ErrEncryptionKeyNotSet if the adapter has no encryption key.
	Set(ctx context.Context, service, key, value string) error

	// Get retrieves the plaintext value for (service, key).
	// Returns ("", nil) if nothing is stored there.
	Get(ctx context.Context, service, key string) (string, error)

	// Delete removes the value for (service, key). Deleting a missing entry is not an error.
	Delete(ctx context.Context, service, key string) error
}
