package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	resp  intake.Response
	panic bool
	subs  []intake.Submission
}

func (f *fakeSubmitter) Submit(_ context.Context, sub intake.Submission) intake.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("submitter exploded")
	}
	f.subs = append(f.subs, sub)
	return f.resp
}

func (f *fakeSubmitter) received() []intake.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]intake.Submission(nil), f.subs...)
}

func newTestServer(t *testing.T, sub Submitter, opts ...Option) *Server {
	t.Helper()
	server, err := NewServer(sub, Config{TrustProxyHeaders: true}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return server
}

const validJSON = `{"name":"Jane Doe","email":"jane@acme.io","message":"Hello there","website":""}`

func TestServer_SubmitContact_JSON(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server := newTestServer(t, sub)

	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(validJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.23, 203.0.113.9")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Thank you for your message! We'll be in touch soon."}`, rec.Body.String())
	got := sub.received()
	require.Len(t, got, 1)
	require.Equal(t, "Jane Doe", got[0].Name)
	require.Equal(t, "jane@acme.io", got[0].Email)
	require.Equal(t, "203.0.113.9", got[0].ClientAddress)
}

func TestServer_SubmitContact_FormEncoded(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server := newTestServer(t, sub)

	form := url.Values{
		"name":    {"Jane Doe"},
		"email":   {"jane@acme.io"},
		"message": {"Hello there"},
		"website": {"spam.example"},
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := sub.received()
	require.Len(t, got, 1)
	require.Equal(t, "spam.example", got[0].Website)
	require.Equal(t, "192.0.2.1", got[0].ClientAddress)
}

func TestServer_SubmitContact_Multipart(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server := newTestServer(t, sub)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Jane Doe"))
	require.NoError(t, mw.WriteField("email", "jane@acme.io"))
	require.NoError(t, mw.WriteField("message", "Hello there"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/contact", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jane@acme.io", sub.received()[0].Email)
}

func TestServer_SubmitContact_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		resp   intake.Response
		status int
	}{
		"accepted":     {intake.AcceptedResponse(), http.StatusOK},
		"bot":          {intake.BotResponse(), http.StatusBadRequest},
		"invalid":      {intake.InvalidResponse([]intake.FieldError{{Field: "email", Message: "Please enter a valid email address."}}), http.StatusBadRequest},
		"rate limited": {intake.RateLimitedResponse(), http.StatusTooManyRequests},
		"internal":     {intake.InternalResponse(), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, &fakeSubmitter{resp: tc.resp})
			req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(validJSON))
			rec := httptest.NewRecorder()

			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.resp.Message)
			require.NotContains(t, rec.Body.String(), string(tc.resp.Outcome))
		})
	}
}

func TestServer_SubmitContact_InvalidJSON(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server := newTestServer(t, sub)
	req := httptest.NewRequest(http.MethodPost, "/v1/contact", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), intake.MessageRejected)
	require.Empty(t, sub.received())
}

func TestServer_SubmitContact_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server := newTestServer(t, sub)
	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader("name=Jane"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, sub.received())
}

func TestServer_SubmitContact_BodyTooLarge(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: intake.AcceptedResponse()}
	server, err := NewServer(sub, Config{MaxBodyBytes: 64}, zap.NewNop())
	require.NoError(t, err)

	payload := `{"name":"Jane Doe","email":"jane@acme.io","message":"` + strings.Repeat("a", 512) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), intake.MessageRejected)
	require.Empty(t, sub.received())
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeSubmitter{panic: true})
	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(validJSON))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), intake.MessageInternal)
	require.NotContains(t, rec.Body.String(), "exploded")
}

func TestServer_SecurityHeadersAndRequestID(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeSubmitter{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(t, &fakeSubmitter{},
		WithReadinessCheck("store", func(context.Context) error { return nil }),
	)
	rec := httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	broken := newTestServer(t, &fakeSubmitter{},
		WithReadinessCheck("store", func(context.Context) error { return nil }),
		WithReadinessCheck("rate_limit", func(context.Context) error {
			return errors.New("dial tcp 10.0.0.5:6379: connection refused")
		}),
	)
	rec = httptest.NewRecorder()
	broken.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "rate_limit")
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	server := newTestServer(t, &fakeSubmitter{resp: intake.RateLimitedResponse()}, WithMetrics(recorder, reg))

	req := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader(validJSON))
	server.Handler().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `http_requests_total{code="429",method="POST"} 1`)
	require.Contains(t, rec.Body.String(), `http_request_duration_seconds_count{method="POST",route="/v1/contact"} 1`)
}

func TestNewServerRequiresSubmitter(t *testing.T) {
	t.Parallel()

	_, err := NewServer(nil, Config{}, nil)
	require.Error(t, err)
}
