// utils/http.go
package utils

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// NewHTTPClient returns a client for service-to-service calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// ReadErrorBody reads at most 1KB of a non-2xx body for error messages.
func ReadErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Sprintf("<unreadable body: %v>", err)
	}
	return string(body)
}

// DrainAndClose drains the body so the connection can be reused.
func DrainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
