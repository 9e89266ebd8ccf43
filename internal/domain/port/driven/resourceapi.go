package driven

import (
	"context"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// ResourceAPI defines the driven port for the backend's generic REST
// collections. Every method requires a non-empty bearer token and returns
// model.ErrUnauthorized without sending anything when it is empty.
type ResourceAPI interface {
	List(ctx context.Context, accessToken string, resource model.Resource, params model.ListParams) (*model.Page, error)
	Get(ctx context.Context, accessToken string, resource model.Resource, id int64) (model.Record, error)
	Create(ctx context.Context, accessToken string, resource model.Resource, data model.Record) (model.Record, error)
	// Patch sends a partial update; fields absent from delta are left unchanged by the backend.
	Patch(ctx context.Context, accessToken string, resource model.Resource, id int64, delta model.Delta) (model.Record, error)
	Delete(ctx context.Context, accessToken string, resource model.Resource, id int64) error

	// Read-only booking views.

	MyBookings(ctx context.Context, accessToken string) ([]model.Record, error)
	RoomDesks(ctx context.Context, accessToken string, roomID int64) ([]model.Record, error)
	RoomBookings(ctx context.Context, accessToken string, roomID int64, date string) ([]model.Record, error)
}
