package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

// stubEmbedder returns fixed vectors; the pipeline only needs the shape.
type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5, 0.5, 0.5}
	}
	return out, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.5, 0.5, 0.5}, nil
}

// initTestRepo creates a local git repository with one commit.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}

	files := map[string]string{
		"main.go":   "package main\n\nfunc main() {}\n",
		"README.md": "# fixture\n\ntest repository\n",
		"creds.env": "password = \"hunter22secret\"\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if err := wt.AddGlob("."); err != nil {
		t.Fatalf("AddGlob() error = %v", err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return dir
}

func newPipelineFixture(t *testing.T, anonymize bool) (*Service, *project.Project, *capturePublisher) {
	t.Helper()
	ctx := context.Background()

	projects, err := project.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	proj, err := projects.Create(ctx, project.CreateRequest{
		OrgID:            "org-1",
		Name:             "pipeline-fixture",
		AnonymizeSecrets: anonymize,
	})
	if err != nil {
		t.Fatal(err)
	}

	repoDir := initTestRepo(t)
	if _, err := projects.AddRepository(ctx, proj.ID, project.AddRepositoryRequest{URL: repoDir}); err != nil {
		t.Fatal(err)
	}

	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, stubEmbedder{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pub := &capturePublisher{}
	svc := NewService(projects, vectors, nil, pub, nil, Options{
		Workdir:    t.TempDir(),
		ChunkSize:  200,
		VectorSize: 4,
	})
	return svc, proj, pub
}

func waitForTerminal(t *testing.T, svc *Service, projectID string) Snapshot {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("ingestion did not finish in time")
		case <-time.After(50 * time.Millisecond):
		}
		snap, err := svc.Snapshot(projectID)
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
	}
}

func TestPipelineRun(t *testing.T) {
	svc, proj, pub := newPipelineFixture(t, false)
	ctx := context.Background()

	snap, err := svc.Start(ctx, proj.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if snap.Status != StatusRunning {
		t.Errorf("initial status = %v", snap.Status)
	}

	final := waitForTerminal(t, svc, proj.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %v (%s: %s)", final.Status, final.ErrorCode, final.ErrorMessage)
	}
	if final.OverallPercent != 100 {
		t.Errorf("overall = %v, want 100", final.OverallPercent)
	}
	if final.Metrics["files_parsed"] == 0 {
		t.Error("no files parsed")
	}
	if final.Metrics["chunks_indexed"] == 0 {
		t.Error("no chunks indexed")
	}
	if pub.count() == 0 {
		t.Error("no progress events published")
	}

	// Project status and totals are written back.
	got, err := svc.projects.Get(ctx, proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != project.StatusActive {
		t.Errorf("project status = %v, want active", got.Status)
	}
	if got.TotalFiles == 0 {
		t.Error("project total files not recorded")
	}
}

func TestPipelineRefusesDoubleStart(t *testing.T) {
	svc, proj, _ := newPipelineFixture(t, false)
	ctx := context.Background()

	if _, err := svc.Start(ctx, proj.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := svc.Start(ctx, proj.ID)
	if err != nil && !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	waitForTerminal(t, svc, proj.ID)

	// Once finished, a fresh run is allowed again.
	if _, err := svc.Start(ctx, proj.ID); err != nil {
		t.Errorf("Start() after completion error = %v", err)
	}
	waitForTerminal(t, svc, proj.ID)
}

func TestPipelineNoRepositories(t *testing.T) {
	ctx := context.Background()
	projects, err := project.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	proj, err := projects.Create(ctx, project.CreateRequest{OrgID: "org-1", Name: "empty-project"})
	if err != nil {
		t.Fatal(err)
	}
	vectors, _ := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, stubEmbedder{}, nil)
	svc := NewService(projects, vectors, nil, nil, nil, Options{Workdir: t.TempDir()})

	if _, err := svc.Start(ctx, proj.ID); !errors.Is(err, ErrNoRepositories) {
		t.Errorf("Start() error = %v, want ErrNoRepositories", err)
	}
}

func TestPipelineSnapshotUnknownProject(t *testing.T) {
	svc, _, _ := newPipelineFixture(t, false)
	if _, err := svc.Snapshot("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrNotFound", err)
	}
}

func TestPipelineFailsOnBadRepository(t *testing.T) {
	ctx := context.Background()
	projects, err := project.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	proj, err := projects.Create(ctx, project.CreateRequest{OrgID: "org-1", Name: "broken-project"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := projects.AddRepository(ctx, proj.ID, project.AddRepositoryRequest{URL: filepath.Join(t.TempDir(), "does-not-exist")}); err != nil {
		t.Fatal(err)
	}
	vectors, _ := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, stubEmbedder{}, nil)
	svc := NewService(projects, vectors, nil, nil, nil, Options{Workdir: t.TempDir()})

	if _, err := svc.Start(ctx, proj.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	final := waitForTerminal(t, svc, proj.ID)
	if final.Status != StatusFailed {
		t.Errorf("final status = %v, want failed", final.Status)
	}
	if final.ErrorCode == "" {
		t.Error("failed run has no error code")
	}

	got, _ := projects.Get(ctx, proj.ID)
	if got.Status != project.StatusError {
		t.Errorf("project status = %v, want error", got.Status)
	}
}

func TestOptimizeChunksRedaction(t *testing.T) {
	svc, proj, _ := newPipelineFixture(t, true)
	ctx := context.Background()

	// Redactor nil means anonymize is a no-op even when the project opts in.
	if _, err := svc.Start(ctx, proj.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	final := waitForTerminal(t, svc, proj.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("final status = %v", final.Status)
	}
}
