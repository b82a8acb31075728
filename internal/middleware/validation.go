package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxRequestBodySize is the maximum size of request bodies (1MB). The API
// accepts only small control payloads; bulk data flows out, not in.
const MaxRequestBodySize = 1 * 1024 * 1024

// ValidateRequestBody returns a middleware that limits request body size on
// mutating methods.
func ValidateRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "PATCH" {
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateJSON validates that the request body is valid JSON and restores it
// for the actual handler.
func ValidateJSON(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("Content-Type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	var js json.RawMessage
	if err := json.Unmarshal(body, &js); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	r.Body = io.NopCloser(strings.NewReader(string(body)))

	return nil
}
