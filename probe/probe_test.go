package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/anemwatch/config"
)

const testEndpoint = "http://probe.test/AllocationChomage/api/validateCandidate/query"

func newTestClient(t *testing.T, ttl time.Duration) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProbeEnabled = true
	cfg.ProbeEndpoint = testEndpoint
	cfg.ProbeTimeout = time.Second
	cfg.ProbeCacheTTL = ttl

	c, err := New(cfg, nil)
	require.NoError(t, err)
	transport := httpmock.NewMockTransport()
	c.WithTransport(transport)
	return c, transport
}

func testCredentials(t *testing.T) config.Credentials {
	t.Helper()
	creds, err := config.NewCredentials("320600000120", "100001144000120009")
	require.NoError(t, err)
	return creds
}

func TestCheckDecodesResponse(t *testing.T) {
	c, transport := newTestClient(t, 0)

	var seen *http.Request
	transport.RegisterResponder("GET", testEndpoint, func(req *http.Request) (*http.Response, error) {
		seen = req
		return httpmock.NewStringResponse(200, `{"eligible":true,"haveRendezVous":false,"controle":"ok"}`), nil
	})

	res, err := c.Check(context.Background(), testCredentials(t))
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, true, res.Fields["eligible"])
	assert.False(t, res.Cached)

	require.NotNil(t, seen)
	assert.Equal(t, "320600000120", seen.URL.Query().Get("wassitNumber"))
	assert.Equal(t, "100001144000120009", seen.URL.Query().Get("identityDocNumber"))
	assert.Equal(t, "https://minha.anem.dz/", seen.Header.Get("Referer"))
	assert.Equal(t, "cors", seen.Header.Get("Sec-Fetch-Mode"))
	assert.Contains(t, seen.Header.Get("User-Agent"), "Mozilla/5.0")
}

func TestCheckUsesCache(t *testing.T) {
	c, transport := newTestClient(t, time.Minute)
	transport.RegisterResponder("GET", testEndpoint, httpmock.NewStringResponder(200, `{"eligible":true}`))

	first, err := c.Check(context.Background(), testCredentials(t))
	require.NoError(t, err)
	second, err := c.Check(context.Background(), testCredentials(t))
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestCheckDoesNotCacheFailures(t *testing.T) {
	c, transport := newTestClient(t, time.Minute)
	transport.RegisterResponder("GET", testEndpoint, httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	for i := 0; i < 2; i++ {
		_, err := c.Check(context.Background(), testCredentials(t))
		require.Error(t, err)
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestCheckStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusBadRequest, expected: "candidate_rejected"},
		{status: http.StatusNotFound, expected: "candidate_rejected"},
		{status: http.StatusUnprocessableEntity, expected: "candidate_rejected"},
		{status: http.StatusUnauthorized, expected: "refused"},
		{status: http.StatusForbidden, expected: "refused"},
		{status: http.StatusTooManyRequests, expected: "refused"},
		{status: http.StatusInternalServerError, expected: "unavailable"},
		{status: http.StatusBadGateway, expected: "unavailable"},
		{status: http.StatusTeapot, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			c, transport := newTestClient(t, 0)
			transport.RegisterResponder("GET", testEndpoint, httpmock.NewStringResponder(tt.status, ""))

			_, err := c.Check(context.Background(), testCredentials(t))
			require.Error(t, err)
			assert.Equal(t, tt.expected, ErrorTypeLabel(err))
		})
	}
}

func TestCheckRejectsNonJSON(t *testing.T) {
	c, transport := newTestClient(t, 0)
	transport.RegisterResponder("GET", testEndpoint, httpmock.NewStringResponder(200, "<html>maintenance</html>"))

	_, err := c.Check(context.Background(), testCredentials(t))
	var decode ErrDecode
	require.True(t, errors.As(err, &decode), "expected ErrDecode, got %v", err)
}

func TestCheckCanceled(t *testing.T) {
	c, transport := newTestClient(t, 0)
	transport.RegisterResponder("GET", testEndpoint, httpmock.NewStringResponder(200, `{}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Check(ctx, testCredentials(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "dns failure", err: &net.DNSError{Err: "no such host", Name: "ac-controle.anem.dz"}, expected: "unreachable"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "unreachable"},
		{name: "unknown authority", err: &url.Error{Op: "Get", URL: testEndpoint, Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}, expected: "certificate"},
		{name: "hostname mismatch", err: x509.HostnameError{Host: "ac-controle.anem.dz"}, expected: "certificate"},
		{name: "candidate rejected", statusCode: http.StatusUnprocessableEntity, expected: "candidate_rejected"},
		{name: "refused", statusCode: http.StatusForbidden, expected: "refused"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorTypeLabel(classifyError(tt.err, tt.statusCode)))
		})
	}
}

func TestResultLogValueHidesValues(t *testing.T) {
	res := &Result{Status: 200, Fields: map[string]any{"eligible": true, "nom": "BENALI"}}

	var sb strings.Builder
	slog.New(slog.NewTextHandler(&sb, nil)).Info("probe", slog.Any("result", res))
	out := sb.String()

	assert.Contains(t, out, "eligible=true")
	assert.Contains(t, out, "nom")
	assert.NotContains(t, out, "BENALI")
}
