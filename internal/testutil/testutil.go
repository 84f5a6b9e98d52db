// Package testutil holds helpers shared by the package tests: admin route
// requests, event queue reads with a deadline and hex fixtures.
package testutil

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
)

// RecvTimeout bounds Next.
const RecvTimeout = 2 * time.Second

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewAdminRequest builds a request that tsweb's debug handlers accept: they
// only serve loopback callers. A non-nil body is sent as a form.
func NewAdminRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

// Next receives one item from q, failing the test if none arrives within
// RecvTimeout.
func Next[T any](t testing.TB, q *dispatch.Queue[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), RecvTimeout)
	defer cancel()
	v, err := q.Recv(ctx)
	if err != nil {
		t.Fatalf("receive from queue: %v", err)
	}
	return v
}

// MustHex decodes a hex fixture. Spaces are ignored so fixtures can be
// grouped by header and payload.
func MustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}
