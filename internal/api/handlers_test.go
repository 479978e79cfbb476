package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-engine/internal/models"
	"collab-engine/internal/repository"
	"collab-engine/internal/services/collaboration"
)

// fakeConflictLog doubles as the registry's recorder so REST reads see
// what the registry wrote.
type fakeConflictLog struct {
	mu      sync.Mutex
	records []*models.ConflictRecord
}

func (f *fakeConflictLog) Record(ctx context.Context, record *models.ConflictRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeConflictLog) ListByFile(ctx context.Context, fileID string, limit, offset int) ([]*models.ConflictRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ConflictRecord
	for _, r := range f.records {
		if r.FileID == fileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeConflictLog) ListBySession(ctx context.Context, sessionID string) ([]*models.ConflictRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ConflictRecord
	for _, r := range f.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeParticipantLog struct {
	mu     sync.Mutex
	events []*models.ParticipantEvent
}

func (f *fakeParticipantLog) RecordEvent(ctx context.Context, event *models.ParticipantEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeParticipantLog) ListBySession(ctx context.Context, sessionID string) ([]*models.ParticipantEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ParticipantEvent
	for _, e := range f.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeVersions struct {
	versions []*models.DocumentVersion
}

func (f *fakeVersions) ListVersions(ctx context.Context, fileID string, limit int) ([]*models.DocumentVersion, error) {
	return f.versions, nil
}

func (f *fakeVersions) GetVersion(ctx context.Context, fileID string, number uint64) (*models.DocumentVersion, error) {
	for _, v := range f.versions {
		if v.FileID == fileID && v.VersionNumber == number {
			return v, nil
		}
	}
	return nil, fmt.Errorf("version %d of %s: %w", number, fileID, repository.ErrNotFound)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

func newTestServer(t *testing.T, opts collaboration.Options) (*httptest.Server, *collaboration.Registry) {
	t.Helper()

	conflicts := &fakeConflictLog{}
	participants := &fakeParticipantLog{}
	opts.Recorder = conflicts
	opts.Auditor = participants

	registry := collaboration.NewRegistry(opts)
	versions := &fakeVersions{versions: []*models.DocumentVersion{
		{ID: "v1", FileID: "f1", VersionNumber: 1, Content: "saved"},
	}}
	h := NewHandler(registry, conflicts, participants, versions, nil, fakePinger{}, nil)

	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv, registry
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestCreateSession(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})

	resp, body := doJSON(t, "POST", srv.URL+"/api/sessions", map[string]interface{}{
		"session_id": "s1", "file_id": "f1", "content": "hello",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "s1", body["id"])
	assert.Equal(t, float64(0), body["version"])
	assert.Equal(t, float64(5), body["content_length"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = doJSON(t, "POST", srv.URL+"/api/sessions", map[string]interface{}{
		"session_id": "s1", "file_id": "f1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeConflict, body["code"])
}

func TestCreateSessionGeneratesID(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})

	resp, body := doJSON(t, "POST", srv.URL+"/api/sessions", map[string]interface{}{"file_id": "f1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})

	tests := map[string]interface{}{
		"missing file":     map[string]interface{}{"session_id": "s1"},
		"negative ttl":     map[string]interface{}{"file_id": "f1", "expires_in_seconds": -1},
		"slash in id":      map[string]interface{}{"session_id": "a/b", "file_id": "f1"},
		"not json":         "{",
		"wrong field type": `{"file_id": 5}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, out := doJSON(t, "POST", srv.URL+"/api/sessions", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, CodeValidation, out["code"])
		})
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})

	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/content", "/api/sessions/nope/cursors"} {
		resp, body := doJSON(t, "GET", srv.URL+path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, CodeNotFound, body["code"], path)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})
	base := srv.URL + "/api/sessions"

	resp, _ := doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, "POST", base+"/s1/participants", map[string]string{"user_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["participants"], 1)

	resp, _ = doJSON(t, "POST", base+"/s1/participants", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, "DELETE", base+"/s1/participants/alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doJSON(t, "GET", base+"/s1/participants", nil)
	assert.Empty(t, body["participants"])

	_, body = doJSON(t, "GET", base, nil)
	assert.Equal(t, float64(1), body["count"])

	resp, _ = doJSON(t, "DELETE", base+"/s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, "GET", base+"/s1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The audit trail outlives the session.
	resp, body = doJSON(t, "GET", base+"/s1/participants/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events, ok := body["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, "join", events[0].(map[string]interface{})["kind"])
	assert.Equal(t, "leave", events[1].(map[string]interface{})["kind"])
}

func TestSubmitConcurrentOperations(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})
	base := srv.URL + "/api/sessions"

	doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1", "content": "Hello"})

	resp, body := doJSON(t, "POST", base+"/s1/operations",
		`{"id":"a","author":"alice","base_version":0,"kind":"insert","position":5,"content":" World"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	// Computed against version 0, so it is rebased over alice's insert.
	resp, body = doJSON(t, "POST", base+"/s1/operations",
		`{"id":"b","author":"bob","base_version":0,"kind":"insert","position":5,"content":"!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["version"])

	_, body = doJSON(t, "GET", base+"/s1/content", nil)
	assert.Equal(t, "Hello World!", body["content"])
	assert.Equal(t, float64(2), body["version"])

	_, body = doJSON(t, "GET", base+"/s1/operations?since=1", nil)
	ops, ok := body["operations"].([]interface{})
	require.True(t, ok)
	require.Len(t, ops, 1)
	assert.Equal(t, "b", ops[0].(map[string]interface{})["id"])

	resp, body = doJSON(t, "GET", base+"/s1/operations?since=9", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeValidation, body["code"])

	resp, _ = doJSON(t, "GET", base+"/s1/operations?since=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitOperationRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})
	base := srv.URL + "/api/sessions"
	doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1", "content": "abc"})

	tests := map[string]string{
		"unknown kind":   `{"id":"x","author":"u","kind":"move","position":0}`,
		"missing author": `{"id":"x","kind":"insert","position":0,"content":"a"}`,
		"out of bounds":  `{"id":"x","author":"u","kind":"delete","position":2,"length":5}`,
		"wrong fields":   `{"id":"x","author":"u","kind":"insert","position":0,"length":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, out := doJSON(t, "POST", base+"/s1/operations", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, CodeValidation, out["code"])
		})
	}
}

func TestSubmitOperationStale(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{MaxLag: 1})
	base := srv.URL + "/api/sessions"
	doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1"})

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, "POST", base+"/s1/operations",
			fmt.Sprintf(`{"id":"o%d","author":"u","base_version":%d,"kind":"insert","position":0,"content":"x"}`, i, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doJSON(t, "POST", base+"/s1/operations",
		`{"id":"late","author":"u","base_version":0,"kind":"insert","position":0,"content":"y"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeStaleOperation, body["code"])
}

func TestSubmitOperationConflictPolicies(t *testing.T) {
	overlapping := []string{
		`{"id":"a","author":"alice","base_version":0,"kind":"delete","position":0,"length":5}`,
		`{"id":"b","author":"bob","base_version":0,"kind":"delete","position":3,"length":5}`,
	}

	t.Run("annotate", func(t *testing.T) {
		srv, _ := newTestServer(t, collaboration.Options{})
		base := srv.URL + "/api/sessions"
		doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1", "content": "0123456789"})

		doJSON(t, "POST", base+"/s1/operations", overlapping[0])
		resp, body := doJSON(t, "POST", base+"/s1/operations", overlapping[1])
		require.Equal(t, http.StatusOK, resp.StatusCode)
		conflict, ok := body["conflict"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "removal_overlap", conflict["classification"])

		_, body = doJSON(t, "GET", base+"/s1/content", nil)
		assert.Equal(t, "89", body["content"])
	})

	t.Run("reject", func(t *testing.T) {
		srv, _ := newTestServer(t, collaboration.Options{ConflictPolicy: collaboration.PolicyReject})
		base := srv.URL + "/api/sessions"
		doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1", "content": "0123456789"})

		doJSON(t, "POST", base+"/s1/operations", overlapping[0])
		resp, body := doJSON(t, "POST", base+"/s1/operations", overlapping[1])
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, CodeConflict, body["code"])
		conflict, ok := body["conflict"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "removal_overlap", conflict["classification"])

		_, body = doJSON(t, "GET", base+"/s1/content", nil)
		assert.Equal(t, "56789", body["content"])

		_, body = doJSON(t, "GET", base+"/s1/conflicts", nil)
		records, ok := body["conflicts"].([]interface{})
		require.True(t, ok)
		require.Len(t, records, 1)
		record := records[0].(map[string]interface{})
		assert.Equal(t, true, record["rejected"])
		assert.Equal(t, "89", record["resolved_content"])
		assert.Equal(t, "56789", record["post_content"])
	})
}

func TestCursors(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})
	base := srv.URL + "/api/sessions"
	doJSON(t, "POST", base, map[string]interface{}{"session_id": "s1", "file_id": "f1"})

	resp, _ := doJSON(t, "PUT", base+"/s1/cursors/alice", map[string]int{"line": 2, "column": 4})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, "PUT", base+"/s1/cursors/alice", map[string]int{"line": -1, "column": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, "PUT", base+"/s1/cursors/alice", map[string]int{"line": 0, "column": 0, "selection_start": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body := doJSON(t, "GET", base+"/s1/cursors", nil)
	cursors, ok := body["cursors"].([]interface{})
	require.True(t, ok)
	require.Len(t, cursors, 1)
	cursor := cursors[0].(map[string]interface{})
	assert.Equal(t, "alice", cursor["user_id"])
	assert.Equal(t, float64(2), cursor["line"])

	resp, body = doJSON(t, "GET", base+"/s1/cursors/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["column"])

	resp, body = doJSON(t, "GET", base+"/s1/cursors/bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, body["code"])
}

func TestVersions(t *testing.T) {
	srv, _ := newTestServer(t, collaboration.Options{})

	resp, body := doJSON(t, "GET", srv.URL+"/api/files/f1/versions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "saved", body["content"])

	resp, body = doJSON(t, "GET", srv.URL+"/api/files/f1/versions/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, body["code"])

	resp, _ = doJSON(t, "GET", srv.URL+"/api/files/f1/versions/latest", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = doJSON(t, "GET", srv.URL+"/api/files/f1/versions", nil)
	assert.Len(t, body["versions"], 1)
}

func TestHealth(t *testing.T) {
	registry := collaboration.NewRegistry(collaboration.Options{})
	h := NewHandler(registry, &fakeConflictLog{}, &fakeParticipantLog{}, &fakeVersions{}, nil, fakePinger{err: errors.New("down")}, nil)
	srv := httptest.NewServer(SetupRoutes(h))
	defer srv.Close()

	resp, body := doJSON(t, "GET", srv.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["database"])
}

func TestWriteErrorBusy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/s1/operations", nil)

	writeError(rec, req, fmt.Errorf("apply: %w", collaboration.ErrBusy))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), CodeBusy)
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/files/f1/conflicts", nil)

	writeError(rec, req, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
