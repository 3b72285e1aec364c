package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSearchContactByEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)
		require.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 1, req.Limit)
		require.Equal(t, filter{PropertyName: "email", Operator: "EQ", Value: "ada@example.com"}, req.FilterGroups[0].Filters[0])

		_ = json.NewEncoder(w).Encode(searchResponse{Total: 1, Results: []contact{{ID: "501"}}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "pat-123"}, srv.Client())
	id, found, err := c.SearchContactByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "501", id)
}

func TestSearchContactNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total":0,"results":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "pat"}, srv.Client())
	_, found, err := c.SearchContactByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCreateAndUpdateContact(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body propertiesBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ada@example.com", body.Properties["email"])

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"777","properties":{"email":"ada@example.com"}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/crm/v3/objects/contacts/777":
			_, _ = w.Write([]byte(`{"id":"777"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Token: "pat"}, srv.Client())
	props := map[string]string{"email": "ada@example.com", "firstname": "Ada"}

	id, err := c.CreateContact(context.Background(), props)
	require.NoError(t, err)
	require.Equal(t, "777", id)

	id, err = c.UpdateContact(context.Background(), "777", props)
	require.NoError(t, err)
	require.Equal(t, "777", id)
}

func TestErrorsOmitResponseBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Property values were not valid: ada@example.com"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "pat-secret"}, srv.Client())
	_, err := c.CreateContact(context.Background(), map[string]string{"email": "ada@example.com"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.False(t, strings.Contains(err.Error(), "ada@example.com"))
	require.False(t, strings.Contains(err.Error(), "pat-secret"))
}

func TestMissingTokenNeverCallsOut(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, srv.Client())
	_, _, err := c.SearchContactByEmail(context.Background(), "ada@example.com")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.False(t, called)
}

func TestThrottleHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "pat", RequestsPerSecond: 0.001, Burst: 1}, srv.Client())
	_, _, err := c.SearchContactByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = c.SearchContactByEmail(ctx, "ada@example.com")
	require.ErrorContains(t, err, "rate limit wait")
	require.Equal(t, int32(1), calls.Load())
}
