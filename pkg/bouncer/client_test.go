package bouncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "/email/verify", r.URL.Path)
		assert.Equal(t, "jane@acme.example.com", r.URL.Query().Get("email"))

		_, _ = w.Write([]byte(`{
			"email": "jane@acme.example.com",
			"status": "deliverable",
			"reason": "accepted_email",
			"domain": {"name": "acme.example.com", "acceptAll": "no", "disposable": "no", "free": "no"},
			"account": {"role": "no", "fullMailbox": "no"}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Verify(context.Background(), "jane@acme.example.com")
	require.NoError(t, err)

	assert.Equal(t, StatusDeliverable, resp.Status)
	assert.Equal(t, "accepted_email", resp.Reason)
	assert.Equal(t, "acme.example.com", resp.Domain.Name)
}

func TestVerifyEmptyEmail(t *testing.T) {
	t.Parallel()
	c := NewClient("k")
	_, err := c.Verify(context.Background(), "")
	require.Error(t, err)
}

func TestVerifyRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Verify(context.Background(), "x@example.com")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestVerifyServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("credits exhausted"))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Verify(context.Background(), "x@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}
