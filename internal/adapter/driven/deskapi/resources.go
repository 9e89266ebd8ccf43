package deskapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// List fetches one page of a collection. The query uses the admin console's
// encoding: range=[offset,limit] and sort=["field","ASC"]. The total is read
// from Content-Range and falls back to the page length.
func (c *Client) List(ctx context.Context, accessToken string, resource model.Resource, params model.ListParams) (*model.Page, error) {
	u := c.endpoint(string(resource))
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("range", fmt.Sprintf("[%d,%d]", params.Offset, params.Limit))
	}
	if params.SortField != "" {
		order := params.SortOrder
		if order == "" {
			order = model.SortAsc
		}
		q.Set("sort", fmt.Sprintf("[%q,%q]", params.SortField, string(order)))
	}
	u.RawQuery = q.Encode()

	data, header, err := c.read(ctx, u, accessToken)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", resource, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s list: %w", resource, err)
	}

	total, ok := parseContentRange(header.Get("Content-Range"))
	if !ok {
		total = len(records)
	}
	return &model.Page{Records: records, Total: total}, nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, accessToken string, resource model.Resource, id int64) (model.Record, error) {
	data, _, err := c.read(ctx, c.endpoint(string(resource), strconv.FormatInt(id, 10)), accessToken)
	if err != nil {
		return nil, fmt.Errorf("getting %s/%d: %w", resource, id, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s/%d: %w", resource, id, err)
	}
	return rec, nil
}

// Create posts a new record and returns the backend's stored version.
func (c *Client) Create(ctx context.Context, accessToken string, resource model.Resource, data model.Record) (model.Record, error) {
	body, err := c.mutate(ctx, http.MethodPost, c.endpoint(string(resource)), accessToken, data)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", resource, err)
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decoding created %s: %w", resource, err)
	}
	return rec, nil
}

// Patch sends a partial update and returns the backend's resulting record.
func (c *Client) Patch(ctx context.Context, accessToken string, resource model.Resource, id int64, delta model.Delta) (model.Record, error) {
	if delta == nil {
		delta = model.Delta{}
	}
	body, err := c.mutate(ctx, http.MethodPatch, c.endpoint(string(resource), strconv.FormatInt(id, 10)), accessToken, delta)
	if err != nil {
		return nil, fmt.Errorf("patching %s/%d: %w", resource, id, err)
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decoding patched %s/%d: %w", resource, id, err)
	}
	return rec, nil
}

// Delete removes a record. The backend answers 204 No Content.
func (c *Client) Delete(ctx context.Context, accessToken string, resource model.Resource, id int64) error {
	if _, err := c.mutate(ctx, http.MethodDelete, c.endpoint(string(resource), strconv.FormatInt(id, 10)), accessToken, nil); err != nil {
		return fmt.Errorf("deleting %s/%d: %w", resource, id, err)
	}
	return nil
}

// MyBookings lists the bookings of the token's owner, with desk and room expanded.
func (c *Client) MyBookings(ctx context.Context, accessToken string) ([]model.Record, error) {
	u := c.endpoint("users", "me", "bookings")
	u.Path += "/"
	return c.readList(ctx, u, accessToken, "my bookings")
}

// RoomDesks lists the desks in a room.
func (c *Client) RoomDesks(ctx context.Context, accessToken string, roomID int64) ([]model.Record, error) {
	u := c.endpoint("rooms", strconv.FormatInt(roomID, 10), "desks")
	return c.readList(ctx, u, accessToken, fmt.Sprintf("desks in room %d", roomID))
}

// RoomBookings lists a room's bookings on date (YYYY-MM-DD).
func (c *Client) RoomBookings(ctx context.Context, accessToken string, roomID int64, date string) ([]model.Record, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("booking date %q must be YYYY-MM-DD: %w", date, err)
	}
	u := c.endpoint("rooms", strconv.FormatInt(roomID, 10), "bookings", date)
	return c.readList(ctx, u, accessToken, fmt.Sprintf("bookings in room %d on %s", roomID, date))
}

func (c *Client) readList(ctx context.Context, u *url.URL, accessToken, what string) ([]model.Record, error) {
	data, _, err := c.read(ctx, u, accessToken)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	recs, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", what, err)
	}
	return recs, nil
}

// parseContentRange reads the total from "items 0-9/42" or a bare "42".
func parseContentRange(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
