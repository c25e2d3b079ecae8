package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anansitrading/kijko/internal/config"
	"github.com/Anansitrading/kijko/internal/history"
	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/notify"
	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/realtime"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5, 0.5, 0.5}
	}
	return out, nil
}

func (stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.5, 0.5, 0.5, 0.5}, nil
}

func newTestServer(t *testing.T) (*Server, project.Store) {
	t.Helper()

	projects, err := project.NewStore("")
	require.NoError(t, err)

	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, stubEmbedder{}, nil)
	require.NoError(t, err)

	pipeline := ingest.NewService(projects, vectors, nil, nil, nil, ingest.Options{
		Workdir:   t.TempDir(),
		ChunkSize: 200,
	})
	t.Cleanup(func() { pipeline.Shutdown(context.Background()) })

	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)

	sessions, err := history.NewStore("")
	require.NoError(t, err)

	srv, err := NewServer(Options{
		Projects: projects,
		Pipeline: pipeline,
		Hub:      hub,
		Auth: func(string) (realtime.Claims, error) {
			return realtime.Claims{UserID: "u1", OrgID: "org1"}, nil
		},
		Notifier: notify.NewCenter(nil, hub, nil),
		History:  sessions,
		Config:   config.ServerConfig{Port: 0},
	})
	require.NoError(t, err)
	return srv, projects
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoContentType, "application/json")
	req.Header.Set(headerOrgID, "org1")
	req.Header.Set(headerUserID, "u1")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func createTestProject(t *testing.T, srv *Server, name string) project.Project {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects", map[string]any{
		"name": name,
		"type": "repository",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var proj project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proj))
	return proj
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "disconnected", resp.NATS)
}

func TestProjectCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	proj := createTestProject(t, srv, "billing-service")
	assert.NotEmpty(t, proj.ID)
	assert.Equal(t, "org1", proj.OrgID)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, srv, http.MethodPatch, "/api/v1/projects/"+proj.ID, map[string]any{
		"description": "payments backend",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "payments backend", updated.Description)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"name too short", map[string]any{"name": "ab"}, http.StatusBadRequest},
		{"missing body fields", map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDuplicateNameConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	createTestProject(t, srv, "billing-service")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects", map[string]any{
		"name": "Billing-Service",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidateName(t *testing.T) {
	srv, _ := newTestServer(t)
	createTestProject(t, srv, "billing-service")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/validate/name?name=billing-service", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v project.NameValidation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.False(t, v.Available)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/validate/name?name=brand-new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Available)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/validate/name", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepositoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	proj := createTestProject(t, srv, "billing-service")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/repositories", map[string]any{
		"provider":       "github",
		"repository_url": "https://github.com/acme/billing.git",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var repo project.Repository
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repo))
	assert.Equal(t, "billing", repo.Name)
	// No branch requested means the remote's default branch at clone time.
	assert.Empty(t, repo.Branch)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/repositories", map[string]any{
		"provider":       "github",
		"repository_url": "https://github.com/acme/ledger.git",
		"branch":         "release-2.4",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repo))
	assert.Equal(t, "release-2.4", repo.Branch)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID+"/repositories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var repos []project.Repository
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repos))
	assert.Len(t, repos, 2)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/repositories", map[string]any{
		"repository_url": "ftp://bad",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	proj := createTestProject(t, srv, "billing-service")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/members", map[string]any{
		"email": "dev@acme.io",
		"role":  "developer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var member project.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/members/bulk", map[string]any{
		"emails": []string{"a@acme.io", "b@acme.io", "dev@acme.io"},
		"role":   "viewer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var members []project.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, 2)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, 3)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/projects/"+proj.ID+"/members/"+member.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/projects/"+proj.ID+"/members/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateRepository(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/validate/repository", map[string]any{
		"provider":       "gitlab",
		"repository_url": upstream.URL + "/group/repo.git",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var v project.URLValidation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Accessible)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/validate/repository", map[string]any{
		"provider":       "gitlab",
		"repository_url": upstream.URL + "/missing",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.False(t, v.Accessible)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/validate/repository", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	proj := createTestProject(t, srv, "billing-service")

	// No repositories linked yet.
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/ingest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Snapshot for a project that never ran.
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID+"/ingestion", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/unknown/ingest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	first, err := srv.notifier.Publish(ctx, notify.Notification{
		OrgID: "org1",
		Level: notify.LevelInfo,
		Title: "Ingestion started",
	})
	require.NoError(t, err)
	_, err = srv.notifier.Publish(ctx, notify.Notification{
		OrgID: "org1",
		Level: notify.LevelError,
		Title: "Ingestion failed",
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Notifications []notify.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 2, resp.UnreadCount)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/notifications/"+first.ID+"/read", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Notifications, 1)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/notifications", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.UnreadCount)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/notifications/nope/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	proj := createTestProject(t, srv, "billing-service")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+proj.ID+"/sessions", map[string]any{
		"title": "debug the parser",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session history.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "debug the parser", session.Title)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/nope/sessions", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", map[string]any{
		"role":    "user",
		"content": "why did chunking stall?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", map[string]any{
		"role":    "robot",
		"content": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+session.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []history.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+proj.ID+"/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []history.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 1)

	rec = doJSON(t, srv, http.MethodPatch, "/api/v1/sessions/"+session.ID, map[string]any{
		"title": "parser stall",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+session.ID+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, rl.Allow("10.0.0.2"))

	rl.Stop()
}

func TestRateLimiterStop(t *testing.T) {
	rl := NewIPRateLimiter(1, 1)

	rl.Stop()
	// Stop is idempotent and must not disturb admission decisions.
	rl.Stop()
	assert.True(t, rl.Allow("10.0.0.1"))

	select {
	case <-rl.done:
	default:
		t.Fatal("sweeper not signalled to stop")
	}
}

func TestSplitGitHubURL(t *testing.T) {
	tests := []struct {
		url       string
		owner     string
		repo      string
		expectErr bool
	}{
		{"https://github.com/acme/billing", "acme", "billing", false},
		{"https://github.com/acme/billing.git", "acme", "billing", false},
		{"https://gitlab.com/acme/billing", "", "", true},
		{"https://github.com/acme", "", "", true},
	}
	for _, tt := range tests {
		owner, repo, err := splitGitHubURL(tt.url)
		if tt.expectErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}
