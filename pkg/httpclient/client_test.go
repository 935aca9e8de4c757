package httpclient

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New(WithBaseDelay(time.Millisecond), WithMaxRetries(3))
	resp, err := c.DoContext(context.Background(), http.MethodPost, server.URL, strings.NewReader("payload"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(WithBaseDelay(time.Millisecond), WithMaxRetries(2))
	_, err := c.DoContext(context.Background(), http.MethodGet, server.URL, nil, nil)

	var retryErr *RetryableError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, http.StatusTooManyRequests, retryErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := New().DoContext(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)

	statusErr := ReadError(resp)
	assert.Equal(t, "HTTP 404: nope", statusErr.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelsWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New().DoContext(ctx, http.MethodGet, server.URL, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParsers(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, ParseRetryAfter(h).RetryAfter)

	gh := http.Header{}
	gh.Set("x-ratelimit-remaining", "0")
	gh.Set("x-ratelimit-reset", "1700000000")
	info := ParseGitHubHeaders(gh)
	assert.Equal(t, int64(1700000000), info.ResetTime)

	oa := http.Header{}
	oa.Set("x-ratelimit-remaining-requests", "12")
	assert.Equal(t, 12, ParseOpenAIHeaders(oa).RequestsRemaining)

	assert.Equal(t, SmartRetry, GitHubRetryStrategy(http.StatusForbidden))
	assert.Equal(t, NoRetry, GitHubRetryStrategy(http.StatusNotFound))
}

func TestCalculateDelay(t *testing.T) {
	c := New(WithBaseDelay(100*time.Millisecond), WithMaxDelay(time.Second))

	assert.Equal(t, 100*time.Millisecond, c.calculateDelay(ConservativeRetry, 0, RateLimitInfo{}))
	assert.Equal(t, time.Duration(0), c.calculateDelay(ConservativeRetry, 2, RateLimitInfo{}))
	assert.Equal(t, time.Second, c.calculateDelay(SmartRetry, 0, RateLimitInfo{RetryAfter: time.Hour}))
	assert.Equal(t, 440*time.Millisecond, c.calculateDelay(SmartRetry, 2, RateLimitInfo{}))
}

func TestTLSConfig_TrustsPrivateCA(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer server.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	require.NoError(t, os.WriteFile(caFile, block, 0o600))

	c := New(WithName("private"), WithTLSConfig(&TLSConfig{CACertificate: caFile}), WithMaxRetries(0))
	resp, err := c.DoContext(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "secure", string(body))

	plain := New(WithMaxRetries(0))
	_, err = plain.DoContext(context.Background(), http.MethodGet, server.URL, nil, nil)
	assert.Error(t, err)
}

func TestTLSConfig_Errors(t *testing.T) {
	_, err := (&TLSConfig{CACertificate: filepath.Join(t.TempDir(), "missing.pem")}).ClientConfig()
	assert.ErrorContains(t, err, "failed to read CA certificate")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = (&TLSConfig{CACertificate: bad}).ClientConfig()
	assert.ErrorContains(t, err, "no certificates found")

	cfg, err := (*TLSConfig)(nil).ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}
