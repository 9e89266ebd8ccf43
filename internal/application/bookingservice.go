package application

import (
	"context"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/port/driven"
)

// BookingService serves the non-admin booking views: the caller's own
// bookings and a room's desks and bookings for a day.
type BookingService struct {
	api   driven.ResourceAPI
	creds CredentialSource
}

// NewBookingService creates a BookingService with the required dependencies.
func NewBookingService(api driven.ResourceAPI, creds CredentialSource) *BookingService {
	return &BookingService{api: api, creds: creds}
}

// MyBookings lists the bookings owned by the logged-in user.
func (s *BookingService) MyBookings(ctx context.Context) ([]model.Record, error) {
	token, err := accessToken(s.creds)
	if err != nil {
		return nil, err
	}
	recs, err := s.api.MyBookings(ctx, token)
	observeResource(model.ResourceBookings, "mine", err)
	return recs, err
}

// RoomDesks lists the desks in roomID.
func (s *BookingService) RoomDesks(ctx context.Context, roomID int64) ([]model.Record, error) {
	token, err := accessToken(s.creds)
	if err != nil {
		return nil, err
	}
	recs, err := s.api.RoomDesks(ctx, token, roomID)
	observeResource(model.ResourceDesks, "by_room", err)
	return recs, err
}

// RoomBookings lists roomID's bookings on date (YYYY-MM-DD).
func (s *BookingService) RoomBookings(ctx context.Context, roomID int64, date string) ([]model.Record, error) {
	token, err := accessToken(s.creds)
	if err != nil {
		return nil, err
	}
	recs, err := s.api.RoomBookings(ctx, token, roomID, date)
	observeResource(model.ResourceBookings, "by_room_date", err)
	return recs, err
}
