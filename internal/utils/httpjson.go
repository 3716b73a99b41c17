package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteData writes data inside the standard {"data", "metadata"} envelope.
// Extra metadata keys, such as pagination totals, are merged in.
func WriteData(w http.ResponseWriter, status int, data interface{}, extra map[string]interface{}, log zerolog.Logger) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	WriteJSON(w, status, map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	}, log)
}

// WriteError maps a ledger error onto an HTTP status and writes {"error": ...}.
// Unexpected errors are logged and reported with a generic message.
func WriteError(w http.ResponseWriter, err error, log zerolog.Logger) {
	status := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": message}, log)
}

// StatusForError returns the HTTP status for an error category
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInsufficientInventory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields
func DecodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Invalid("invalid request body: %v", err)
	}
	return nil
}

// URLParamID parses a positive integer route parameter
func URLParamID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("invalid %s %q", name, raw)
	}
	return id, nil
}

// QueryPagination reads page and page_size query parameters
func QueryPagination(r *http.Request) domain.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return domain.Pagination{Page: page, PageSize: size}.Normalize()
}

// QueryInt64 reads an optional positive integer query parameter
func QueryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, domain.Invalid("invalid %s %q", name, raw)
	}
	return &v, nil
}

// QueryDate reads an optional date query parameter, as YYYY-MM-DD or RFC3339.
// A bare date is the start of that day.
func QueryDate(r *http.Request, name string) (*time.Time, error) {
	t, _, err := queryDate(r, name)
	return t, err
}

// QueryDateEnd reads an inclusive upper bound. A bare date covers the whole
// day, so to=2024-01-31 keeps everything dated on the 31st.
func QueryDateEnd(r *http.Request, name string) (*time.Time, error) {
	t, dateOnly, err := queryDate(r, name)
	if err != nil || t == nil || !dateOnly {
		return t, err
	}
	end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end, nil
}

func queryDate(r *http.Request, name string) (*time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		t = t.UTC()
		return &t, true, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, false, nil
	}
	return nil, false, domain.Invalid("invalid %s %q: want YYYY-MM-DD or RFC3339", name, raw)
}

// QueryCurrency reads an optional currency query parameter
func QueryCurrency(r *http.Request, name string) (domain.Currency, error) {
	raw := domain.Currency(r.URL.Query().Get(name))
	if raw != "" && !raw.Valid() {
		return "", fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, raw)
	}
	return raw, nil
}
