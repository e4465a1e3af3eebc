package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/atriumhq/atrium/internal/errors"
)

const defaultPageLimit = 50

// queryLimit parses the limit parameter, applying the default and cap.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.InvalidInput("limit must be a positive integer")
	}
	if limit > 200 {
		limit = 200
	}
	return limit, nil
}

// queryTime parses an RFC 3339 cursor parameter. A missing parameter yields
// the zero time.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.InvalidInput(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
