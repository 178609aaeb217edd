package apihttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"carebot-cloud/internal/apperr"
)

const maxBodyBytes = 1 << 20

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err with the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	apperr.WriteHTTP(w, err)
}

// ReadJSON reads the body into dst, rejecting unknown fields. Validation is left
// to the caller so that it can run after authorization.
// An empty body is an error unless allowEmpty is set, in which case dst is left untouched.
func ReadJSON(r *http.Request, dst any, allowEmpty bool) (bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return false, apperr.Invalid("read body error")
	}
	defer r.Body.Close()
	if len(body) > maxBodyBytes {
		return false, apperr.Invalid("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return false, nil
		}
		return false, apperr.Invalid("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return false, apperr.Invalid("%s has the wrong type", typeErr.Field)
		}
		if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return false, apperr.Invalid("unknown field %s", field)
		}
		return false, apperr.Invalid("invalid json")
	}
	if dec.More() {
		return false, apperr.Invalid("invalid json: trailing data")
	}
	return true, nil
}

// QueryInt parses an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", key)
	}
	return parsed, nil
}
