package deskapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driven/deskapi"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *deskapi.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := deskapi.NewClientWithHTTPClient(server.Client(), server.URL, deskapi.Options{
		Timeout:              5 * time.Second,
		ReadRetries:          2,
		RetryInitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

// countingHandler wraps h and counts requests that reach the server.
func countingHandler(hits *atomic.Int32, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret", r.PostForm.Get("password"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access.jwt.token",
			"refresh_token": "refresh.jwt.token",
			"token_type":    "bearer",
			"scope":         "bookings",
		})
	}))

	cred, err := client.Login(context.Background(), model.LoginInput{Username: "alice", Password: "s3cret"})

	require.NoError(t, err)
	assert.Equal(t, "access.jwt.token", cred.AccessToken)
	assert.Equal(t, "refresh.jwt.token", cred.RefreshToken)
	assert.Equal(t, "bearer", cred.TokenType)
	assert.Equal(t, "bookings", cred.Extra["scope"])
}

func TestLogin_RejectedCredentials(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
	}))

	cred, err := client.Login(context.Background(), model.LoginInput{Username: "alice", Password: "wrong"})

	assert.Nil(t, cred)
	require.ErrorIs(t, err, model.ErrAuthenticationFailed)
	assert.Equal(t, http.StatusUnauthorized, model.StatusCode(err))
	assert.Contains(t, err.Error(), "Incorrect username or password")
}

func TestLogin_ServerFailureIsNotAuthenticationFailure(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Login(context.Background(), model.LoginInput{Username: "alice", Password: "pw"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrAuthenticationFailed)
	assert.Equal(t, http.StatusBadGateway, model.StatusCode(err))
	assert.Equal(t, int32(1), hits.Load(), "login must not be retried")
}

func TestLogin_MissingAccessToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token_type": "bearer"})
	}))

	_, err := client.Login(context.Background(), model.LoginInput{Username: "alice", Password: "pw"})

	require.ErrorIs(t, err, model.ErrAuthenticationFailed)
}

func TestRegister_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/register", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["username"])
		assert.Equal(t, "bob@example.com", body["email"])
		assert.Equal(t, "pw", body["password"])

		writeJSON(w, http.StatusOK, map[string]any{"id": 12, "username": "bob", "email": "bob@example.com", "admin": false})
	}))

	user, err := client.Register(context.Background(), model.Registration{
		Username: "bob", Email: "bob@example.com", Password: "pw",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(12), user.ID)
	assert.Equal(t, "bob", user.Username)
}

func TestRegister_Duplicate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
	}))

	_, err := client.Register(context.Background(), model.Registration{Username: "bob"})

	require.ErrorIs(t, err, model.ErrRegistrationFailed)
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestRegister_ValidationErrorKeepsDetailList(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "email"}, "msg": "field required"}},
		})
	}))

	_, err := client.Register(context.Background(), model.Registration{Username: "bob"})

	require.ErrorIs(t, err, model.ErrRegistrationFailed)
	assert.Contains(t, err.Error(), "field required")
}

func TestEmptyTokenNeverReachesServer(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	ctx := context.Background()

	_, err := client.Get(ctx, "", model.ResourceBookings, 1)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = client.List(ctx, "", model.ResourceRooms, model.ListParams{})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = client.Patch(ctx, "", model.ResourceBookings, 1, model.Delta{"desk_id": 3})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	err = client.Delete(ctx, "", model.ResourceDesks, 1)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = client.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	assert.Equal(t, int32(0), hits.Load())
}

func TestPatch_SendsDeltaWithBearer(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/bookings/7", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"desk_id":3}`, string(body))

		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "desk_id": 3, "date": "2024-01-01", "approved_status": false})
	}))

	rec, err := client.Patch(context.Background(), "tok-123", model.ResourceBookings, 7, model.Delta{"desk_id": 3})

	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), rec["id"])
	assert.Equal(t, "2024-01-01", rec["date"])
}

func TestList_QueryAndTotal(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "[10,5]", r.URL.Query().Get("range"))
		assert.Equal(t, `["name","DESC"]`, r.URL.Query().Get("sort"))

		w.Header().Set("Content-Range", "42")
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "A"}, {"id": 2, "name": "B"}})
	}))

	page, err := client.List(context.Background(), "tok", model.ResourceRooms, model.ListParams{
		Offset: 10, Limit: 5, SortField: "name", SortOrder: model.SortDesc,
	})

	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 42, page.Total)
}

func TestList_TotalFallsBackToPageLength(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}})
	}))

	page, err := client.List(context.Background(), "tok", model.ResourceDesks, model.ListParams{})

	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestRead_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Load() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Atrium"})
	}))

	rec, err := client.Get(context.Background(), "tok", model.ResourceRooms, 1)

	require.NoError(t, err)
	assert.Equal(t, "Atrium", rec["name"])
	assert.Equal(t, int32(3), hits.Load())
}

func TestRead_GivesUpAfterRetryBudget(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.Get(context.Background(), "tok", model.ResourceRooms, 1)

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, model.StatusCode(err))
	assert.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")
}

func TestRead_DoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Room not found"})
	}))

	_, err := client.Get(context.Background(), "tok", model.ResourceRooms, 99)

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, model.StatusCode(err))
	assert.Contains(t, err.Error(), "Room not found")
	assert.Equal(t, int32(1), hits.Load())
}

func TestMutation_IsNeverRetried(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Patch(context.Background(), "tok", model.ResourceBookings, 7, model.Delta{"desk_id": 3})

	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMutation_TimesOutSlowBackend(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(countingHandler(&hits, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			writeJSON(w, http.StatusOK, map[string]any{"id": 7})
		}
	}))
	t.Cleanup(server.Close)

	client, err := deskapi.NewClientWithHTTPClient(server.Client(), server.URL, deskapi.Options{
		Timeout:              50 * time.Millisecond,
		ReadRetries:          2,
		RetryInitialInterval: time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Patch(context.Background(), "tok", model.ResourceBookings, 7, model.Delta{"desk_id": 3})
	elapsed := time.Since(start)

	require.Error(t, err)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDelete_NoContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/desks/4", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.Delete(context.Background(), "tok", model.ResourceDesks, 4)

	require.NoError(t, err)
}

func TestCurrentUser_TrailingSlash(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "username": "alice", "email": "a@example.com", "admin": true})
	}))

	user, err := client.CurrentUser(context.Background(), "tok")

	require.NoError(t, err)
	assert.True(t, user.Admin)
}

func TestBookingViews(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me/bookings/", "/rooms/3/desks", "/rooms/3/bookings/2024-01-01":
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	mine, err := client.MyBookings(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	desks, err := client.RoomDesks(ctx, "tok", 3)
	require.NoError(t, err)
	assert.Len(t, desks, 1)

	bookings, err := client.RoomBookings(ctx, "tok", 3, "2024-01-01")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestRoomBookings_InvalidDateNotSent(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))

	_, err := client.RoomBookings(context.Background(), "tok", 3, "01/01/2024")

	require.Error(t, err)
	assert.Equal(t, int32(0), hits.Load())
}

func TestCache_ServesFreshReadsUntilReset(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, countingHandler(&hits, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Atrium"})
	}))
	ctx := context.Background()

	_, err := client.Get(ctx, "tok", model.ResourceRooms, 1)
	require.NoError(t, err)
	_, err = client.Get(ctx, "tok", model.ResourceRooms, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second read served from cache")

	client.ResetCache()

	_, err = client.Get(ctx, "tok", model.ResourceRooms, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCache_MutationFlushesReads(t *testing.T) {
	var reads atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reads.Add(1)
			w.Header().Set("Cache-Control", "max-age=60")
			w.Header().Set("Content-Range", "1")
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 2})
	}))
	ctx := context.Background()

	_, err := client.List(ctx, "tok", model.ResourceRooms, model.ListParams{})
	require.NoError(t, err)

	_, err = client.Create(ctx, "tok", model.ResourceRooms, model.Record{"name": "Loft"})
	require.NoError(t, err)

	_, err = client.List(ctx, "tok", model.ResourceRooms, model.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := deskapi.NewClient("localhost:8000", deskapi.Options{Timeout: time.Second})
	require.Error(t, err)
}
