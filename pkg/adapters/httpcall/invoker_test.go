package httpcall_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/adapters/httpcall"
	"github.com/aretw0/chatflow/pkg/domain"
)

func TestInvoker_Success(t *testing.T) {
	var method, ctype, auth, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ctype = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = io.WriteString(w, `{"order":{"status":"shipped"}}`)
	}))
	defer srv.Close()

	inv := httpcall.New(httpcall.WithHTTPClient(srv.Client()))
	resp, err := inv.Invoke(context.Background(), domain.ExternalRequest{
		Name:    "order",
		URL:     srv.URL + "/orders/42",
		Method:  "post",
		Headers: map[string]string{"Authorization": "Bearer k"},
		Body:    `{"id":"42"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, `{"id":"42"}`, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"order":{"status":"shipped"}}`, string(resp.Body))
}

func TestInvoker_DefaultsToGet(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	_, err := httpcall.New().Invoke(context.Background(), domain.ExternalRequest{Name: "ping", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
}

func TestInvoker_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "busy")
	}))
	defer srv.Close()

	resp, err := httpcall.New().Invoke(context.Background(), domain.ExternalRequest{Name: "x", URL: srv.URL})
	var serr *domain.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
	assert.True(t, serr.Retryable())
	assert.Equal(t, "busy", string(resp.Body))
}

func TestInvoker_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	resp, err := httpcall.New(httpcall.WithMaxResponseBytes(4)).Invoke(context.Background(), domain.ExternalRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "0123", string(resp.Body))
}

func TestInvoker_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := httpcall.New().Invoke(ctx, domain.ExternalRequest{URL: srv.URL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
