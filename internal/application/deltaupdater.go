package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/port/driven"
)

// CredentialSource supplies the bearer token for outbound calls.
// *SessionGuard satisfies it.
type CredentialSource interface {
	CurrentCredential() *model.Credential
}

// Compile-time interface satisfaction check.
var _ CredentialSource = (*SessionGuard)(nil)

// DeltaUpdater is the authorized data-access path for administered
// resources. Updates send only the fields that changed.
type DeltaUpdater struct {
	api    driven.ResourceAPI
	creds  CredentialSource
	policy DiffPolicy
	logger *slog.Logger
}

// NewDeltaUpdater creates a DeltaUpdater that authorizes every call with the
// credential currently held by creds.
func NewDeltaUpdater(api driven.ResourceAPI, creds CredentialSource, policy DiffPolicy, logger *slog.Logger) *DeltaUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeltaUpdater{
		api:    api,
		creds:  creds,
		policy: policy,
		logger: logger.With("component", "resources"),
	}
}

// Update sends PATCH {resource}/{id} carrying only the fields of edited that
// differ from original, and returns the backend's resulting record. Both
// preconditions are checked before any I/O: original must be present and a
// credential must be cached.
func (u *DeltaUpdater) Update(ctx context.Context, resource model.Resource, id int64, edited, original model.Record) (model.Record, error) {
	if original == nil {
		return nil, model.ErrMissingPriorState
	}
	if _, err := model.ParseResource(string(resource)); err != nil {
		return nil, err
	}
	token, err := accessToken(u.creds)
	if err != nil {
		return nil, err
	}

	delta := u.policy.Compute(edited, original)
	deltaFields.Observe(float64(len(delta)))
	u.logger.Debug("sending update", "resource", resource, "id", id, "fields", len(delta))

	rec, err := u.api.Patch(ctx, token, resource, id, delta)
	observeResource(resource, "update", err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List fetches one page of resource.
func (u *DeltaUpdater) List(ctx context.Context, resource model.Resource, params model.ListParams) (*model.Page, error) {
	token, err := u.authorize(resource)
	if err != nil {
		return nil, err
	}
	page, err := u.api.List(ctx, token, resource, params)
	observeResource(resource, "list", err)
	return page, err
}

// Get fetches one record.
func (u *DeltaUpdater) Get(ctx context.Context, resource model.Resource, id int64) (model.Record, error) {
	token, err := u.authorize(resource)
	if err != nil {
		return nil, err
	}
	rec, err := u.api.Get(ctx, token, resource, id)
	observeResource(resource, "get", err)
	return rec, err
}

// Create sends data whole; there is no prior state to diff against.
func (u *DeltaUpdater) Create(ctx context.Context, resource model.Resource, data model.Record) (model.Record, error) {
	token, err := u.authorize(resource)
	if err != nil {
		return nil, err
	}
	rec, err := u.api.Create(ctx, token, resource, data)
	observeResource(resource, "create", err)
	return rec, err
}

// Delete removes one record.
func (u *DeltaUpdater) Delete(ctx context.Context, resource model.Resource, id int64) error {
	token, err := u.authorize(resource)
	if err != nil {
		return err
	}
	err = u.api.Delete(ctx, token, resource, id)
	observeResource(resource, "delete", err)
	return err
}

func (u *DeltaUpdater) authorize(resource model.Resource) (string, error) {
	if _, err := model.ParseResource(string(resource)); err != nil {
		return "", err
	}
	return accessToken(u.creds)
}

func accessToken(creds CredentialSource) (string, error) {
	cred := creds.CurrentCredential()
	if cred == nil || cred.AccessToken == "" {
		return "", fmt.Errorf("%w: log in first", model.ErrUnauthorized)
	}
	return cred.AccessToken, nil
}
