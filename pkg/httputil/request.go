package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, err)
		return false
	}
	return true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", apperrors.Validation(fmt.Sprintf("missing path parameter: %s", key))
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteAppError(w, err)
		return "", false
	}
	return val, true
}

// ParsePathUUID extracts a UUID path parameter in canonical form
func ParsePathUUID(r *http.Request, key string) (string, error) {
	str, err := ParsePathString(r, key)
	if err != nil {
		return "", err
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid id for %s: %s", key, str))
	}
	return id.String(), nil
}

// ParsePathUUIDOrError extracts a UUID path parameter and writes error on failure
func ParsePathUUIDOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathUUID(r, key)
	if err != nil {
		WriteAppError(w, err)
		return "", false
	}
	return val, true
}

// ParseQueryTime extracts an RFC 3339 timestamp query parameter.
// A missing parameter yields nil.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	str := strings.TrimSpace(r.URL.Query().Get(key))
	if str == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("invalid timestamp for query param %s: %s", key, str))
	}
	return &t, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// RequireNonEmpty validates that a string field is not empty
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if strings.TrimSpace(value) == "" {
		WriteAppError(w, apperrors.InvalidField(fieldName, "is required"))
		return false
	}
	return true
}
