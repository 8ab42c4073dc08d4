package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A second document after the first one is a malformed request, not
	// something to silently ignore.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must be a single JSON object")
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

// readIP prefers the first X-Forwarded-For hop, which is what the edge proxy
// records, and falls back to the peer address with the port stripped.
func readIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func writeMissingBearerError(ctx context.Context, w http.ResponseWriter, operation string) {
	logHTTPOperationError(ctx, operation, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
}
