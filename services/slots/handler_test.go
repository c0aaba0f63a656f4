package slots

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context, dateKey string) (json.RawMessage, error)

func (f fetcherFunc) FetchSlots(ctx context.Context, dateKey string) (json.RawMessage, error) {
	return f(ctx, dateKey)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerPassesThroughSlots(t *testing.T) {
	raw := `{"slots":[{"date":"2025-06-01","start":"1430","court":110271}]}`
	var gotKey string
	handler := NewHandler(fetcherFunc(func(ctx context.Context, dateKey string) (json.RawMessage, error) {
		gotKey = dateKey
		return json.RawMessage(raw), nil
	}), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots?startDate=2025-06-01", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2025-06-01", gotKey)
	require.Equal(t, raw, rec.Body.String())
	require.Contains(t, rec.Header().Get("content-type"), "application/json")
}

func TestHandlerMissingStartDate(t *testing.T) {
	b := &fakeBrowser{}
	c, launcher := newTestCoordinator(t, b, newFakeClock())
	handler := NewHandler(c, nil)

	for _, target := range []string{"/slots", "/slots?startDate=", "/slots?&other=1"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, errorBody{Error: "Start date not set"}, decodeError(t, rec))
	}
	require.EqualValues(t, 0, launcher.launches.Load())
}

func TestHandlerUpstreamFailure(t *testing.T) {
	upstream := &UpstreamFetchError{DateKey: "2025-06-01", Err: errors.New("net::ERR_TIMED_OUT")}

	testCases := []struct {
		err    error
		expect errorBody
	}{
		{
			err:    upstream,
			expect: errorBody{Error: "Failed to fetch slots", Details: "net::ERR_TIMED_OUT"},
		},
		{
			err:    &CoalescedError{Err: upstream},
			expect: errorBody{Error: "Failed to fetch slots (coalesced)", Details: "net::ERR_TIMED_OUT"},
		},
	}

	for _, test := range testCases {
		handler := NewHandler(fetcherFunc(func(ctx context.Context, dateKey string) (json.RawMessage, error) {
			return nil, test.err
		}), nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots?startDate=2025-06-01", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, test.expect, decodeError(t, rec))
	}
}

func TestHandlerServesThroughCoordinator(t *testing.T) {
	b := &fakeBrowser{}
	c, _ := newTestCoordinator(t, b, newFakeClock())
	handler := NewHandler(c, nil)

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots?startDate=2025-06-01", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	require.Equal(t, bodies[0], bodies[1])
	require.EqualValues(t, 1, b.navigations.Load())
}

func TestHandlerRejectsOtherMethods(t *testing.T) {
	handler := NewHandler(fetcherFunc(func(ctx context.Context, dateKey string) (json.RawMessage, error) {
		t.Fatal("fetcher must not be called")
		return nil, nil
	}), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slots?startDate=2025-06-01", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCors(t *testing.T) {
	ok := fetcherFunc(func(ctx context.Context, dateKey string) (json.RawMessage, error) {
		return json.RawMessage(`{"slots":[]}`), nil
	})
	handler := NewHandler(ok, []string{"http://localhost:4200", "http://localhost:8080/"})

	testCases := []struct {
		origin string
		expect string
	}{
		{origin: "http://localhost:4200", expect: "http://localhost:4200"},
		{origin: "http://localhost:8080", expect: "http://localhost:8080"},
		{origin: "https://evil.example", expect: ""},
		{origin: "", expect: ""},
	}
	for _, test := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/slots?startDate=2025-06-01", nil)
		if test.origin != "" {
			req.Header.Set("origin", test.origin)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, test.expect, rec.Header().Get("access-control-allow-origin"), test.origin)
	}

	req := httptest.NewRequest(http.MethodOptions, "/slots", nil)
	req.Header.Set("origin", "http://localhost:4200")
	req.Header.Set("access-control-request-method", "GET")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:4200", rec.Header().Get("access-control-allow-origin"))
	require.Contains(t, rec.Header().Get("access-control-allow-methods"), "GET")

	wildcard := NewHandler(ok, []string{"*"})
	req = httptest.NewRequest(http.MethodGet, "/slots?startDate=2025-06-01", nil)
	req.Header.Set("origin", "https://anything.example")
	rec = httptest.NewRecorder()
	wildcard.ServeHTTP(rec, req)
	require.Equal(t, "https://anything.example", rec.Header().Get("access-control-allow-origin"))
}
