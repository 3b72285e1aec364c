package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/contact-intake/internal/crm/hubspot"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeHubSpot emulates the contacts endpoints backed by a map keyed on email.
type fakeHubSpot struct {
	mu       sync.Mutex
	byEmail  map[string]string
	nextID   int
	failWith int
}

func newFakeHubSpot() *fakeHubSpot {
	return &fakeHubSpot{byEmail: make(map[string]string), nextID: 100}
}

func (f *fakeHubSpot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts/search":
		var req struct {
			FilterGroups []struct {
				Filters []struct {
					Value string `json:"value"`
				} `json:"filters"`
			} `json:"filterGroups"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		email := req.FilterGroups[0].Filters[0].Value
		if id, ok := f.byEmail[email]; ok {
			_, _ = w.Write([]byte(`{"total":1,"results":[{"id":"` + id + `"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total":0,"results":[]}`))
	case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		id := strconv.Itoa(f.nextID)
		f.byEmail[body.Properties["email"]] = id
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + id + `"}`))
	case r.Method == http.MethodPatch:
		_, _ = w.Write([]byte(`{"id":"` + r.URL.Path[len("/crm/v3/objects/contacts/"):] + `"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeHubSpot) contacts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail)
}

type failingWriter struct {
	mu       sync.Mutex
	failOn   map[intake.SyncStatus]bool
	statuses []intake.SyncStatus
}

func (w *failingWriter) UpdateSync(_ context.Context, _ string, update intake.SyncUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses = append(w.statuses, update.Status)
	if w.failOn[update.Status] {
		return errors.New("db down")
	}
	return nil
}

type panickingClient struct{}

func (panickingClient) SearchContactByEmail(context.Context, string) (string, bool, error) {
	panic("nil map in client")
}

func (panickingClient) CreateContact(context.Context, map[string]string) (string, error) {
	return "", nil
}

func (panickingClient) UpdateContact(context.Context, string, map[string]string) (string, error) {
	return "", nil
}

func insertLead(t *testing.T, store *memory.LeadStore, email string) intake.Lead {
	t.Helper()
	lead, err := store.Insert(context.Background(), intake.NewLeadFrom(intake.SanitizedSubmission{
		Name: "Ada King Lovelace", Email: email, Phone: "+44 20 7946 0000", Message: "hello",
	}))
	require.NoError(t, err)
	return lead
}

func TestProperties(t *testing.T) {
	t.Parallel()

	props := Properties(intake.Lead{Name: "Ada King Lovelace", Email: "ada@example.com"})
	require.Equal(t, map[string]string{
		"email":     "ada@example.com",
		"firstname": "Ada",
		"lastname":  "King Lovelace",
	}, props)

	props = Properties(intake.Lead{Name: "Cher", Email: "cher@example.com", Phone: "555 0100 22"})
	require.NotContains(t, props, "lastname")
	require.Equal(t, "555 0100 22", props["phone"])
}

func TestSyncCreatesContactAndMarksSynced(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	srv := httptest.NewServer(hs)
	defer srv.Close()

	store := memory.NewLeadStore(nil, nil)
	lead := insertLead(t, store, "ada@example.com")
	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), store,
		WithClock(fixedClock{now: testNow}))
	require.NoError(t, err)

	res := s.Sync(context.Background(), lead)
	require.Equal(t, intake.SyncStatusSynced, res.Status)
	require.Equal(t, "101", res.ExternalCRMID)
	require.NoError(t, res.Err)

	stored, err := store.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, intake.SyncStatusSynced, stored.SyncStatus)
	require.Equal(t, "101", stored.ExternalCRMID)
	require.Equal(t, testNow, *stored.LastSyncAttempt)
}

func TestSyncIsIdempotentPerEmail(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	srv := httptest.NewServer(hs)
	defer srv.Close()

	store := memory.NewLeadStore(nil, nil)
	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), store)
	require.NoError(t, err)

	first := s.Sync(context.Background(), insertLead(t, store, "ada@example.com"))
	second := s.Sync(context.Background(), insertLead(t, store, "ada@example.com"))
	again := s.Sync(context.Background(), insertLead(t, store, "ada@example.com"))

	require.Equal(t, 1, hs.contacts())
	require.Equal(t, first.ExternalCRMID, second.ExternalCRMID)
	require.Equal(t, first.ExternalCRMID, again.ExternalCRMID)
}

func TestSyncSearchFailureMarksNeedsSync(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	hs.failWith = http.StatusBadGateway
	srv := httptest.NewServer(hs)
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	store := memory.NewLeadStore(nil, nil)
	lead := insertLead(t, store, "ada@example.com")
	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), store,
		WithLogger(zap.New(core)))
	require.NoError(t, err)

	res := s.Sync(context.Background(), lead)
	require.Equal(t, intake.SyncStatusNeedsSync, res.Status)
	require.Error(t, res.Err)

	stored, err := store.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, intake.SyncStatusNeedsSync, stored.SyncStatus)
	require.NotNil(t, stored.LastSyncAttempt)

	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			require.NotContains(t, v, "ada@example.com")
		}
	}
}

func TestSyncStatusWriteFailureFallsBackToNeedsSync(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	srv := httptest.NewServer(hs)
	defer srv.Close()

	writer := &failingWriter{failOn: map[intake.SyncStatus]bool{intake.SyncStatusSynced: true}}
	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), writer)
	require.NoError(t, err)

	res := s.Sync(context.Background(), intake.Lead{ID: "lead-1", Email: "ada@example.com", Name: "Ada"})
	require.Equal(t, intake.SyncStatusNeedsSync, res.Status)
	require.Equal(t, []intake.SyncStatus{intake.SyncStatusSynced, intake.SyncStatusNeedsSync}, writer.statuses)
}

func TestSyncSurvivesDoubleWriteFailure(t *testing.T) {
	t.Parallel()

	writer := &failingWriter{failOn: map[intake.SyncStatus]bool{
		intake.SyncStatusSynced:    true,
		intake.SyncStatusNeedsSync: true,
	}}
	s, err := NewSynchronizer(hubspot.New(hubspot.Config{}, nil), writer)
	require.NoError(t, err)

	res := s.Sync(context.Background(), intake.Lead{ID: "lead-1", Email: "ada@example.com"})
	require.Equal(t, intake.SyncStatusNeedsSync, res.Status)
	require.ErrorIs(t, res.Err, hubspot.ErrNotConfigured)
	require.Equal(t, []intake.SyncStatus{intake.SyncStatusNeedsSync}, writer.statuses)
}

func TestSyncRecoversClientPanic(t *testing.T) {
	t.Parallel()

	writer := &failingWriter{}
	s, err := NewSynchronizer(panickingClient{}, writer)
	require.NoError(t, err)

	var res intake.SyncResult
	require.NotPanics(t, func() {
		res = s.Sync(context.Background(), intake.Lead{ID: "lead-1", Email: "ada@example.com"})
	})
	require.Equal(t, intake.SyncStatusNeedsSync, res.Status)
	require.Error(t, res.Err)
	require.Equal(t, []intake.SyncStatus{intake.SyncStatusNeedsSync}, writer.statuses)
}

func TestNewSynchronizerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewSynchronizer(nil, &failingWriter{})
	require.Error(t, err)
	_, err = NewSynchronizer(panickingClient{}, nil)
	require.Error(t, err)
}
