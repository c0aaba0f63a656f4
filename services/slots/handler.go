package slots

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Fetcher is the part of the Coordinator the http handler depends on.
type Fetcher interface {
	FetchSlots(ctx context.Context, dateKey string) (json.RawMessage, error)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to write response body", "err", err)
	}
}

// NewHandler serves GET /slots?startDate=YYYY-MM-DD, the upstream json is
// passed through untouched. Only origins in allowedOrigins ("*" allows
// any) get CORS headers.
func NewHandler(fetcher Fetcher, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /slots", func(w http.ResponseWriter, r *http.Request) {
		serveSlots(fetcher, w, r)
	})
	return withCors(allowedOrigins, mux)
}

func serveSlots(fetcher Fetcher, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startDate := r.URL.Query().Get("startDate")

	body, err := fetcher.FetchSlots(ctx, startDate)
	if errors.Is(err, ErrMissingKey) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Start date not set"})
		return
	}
	if err != nil {
		message := "Failed to fetch slots"
		var coalesced *CoalescedError
		if errors.As(err, &coalesced) {
			message = "Failed to fetch slots (coalesced)"
		}
		slog.ErrorContext(ctx, "slots request failed", "date", startDate, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   message,
			Details: Details(err),
		})
		return
	}

	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	if err != nil {
		slog.WarnContext(ctx, "failed to write slots", "date", startDate, "err", err)
	}
}

func withCors(allowedOrigins []string, next http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAny = true
		}
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Add("vary", "Origin")

		origin := r.Header.Get("origin")
		_, ok := allowed[origin]
		if origin != "" && (ok || allowAny) {
			header.Set("access-control-allow-origin", origin)
		}

		preflight := r.Method == http.MethodOptions && r.Header.Get("access-control-request-method") != ""
		if preflight {
			header.Set("access-control-allow-methods", "GET,HEAD,OPTIONS")
			if requested := r.Header.Get("access-control-request-headers"); requested != "" {
				header.Set("access-control-allow-headers", requested)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
