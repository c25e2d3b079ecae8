package notify

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/project"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting nats server: %v", err)
	}
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	nc, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("connecting to nats: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestIngestWatcher(t *testing.T) {
	nc := startNATS(t)
	ctx := context.Background()

	projects, err := project.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	proj, err := projects.Create(ctx, project.CreateRequest{
		OrgID: "org1",
		Name:  "billing-service",
	})
	if err != nil {
		t.Fatal(err)
	}

	center := NewCenter(nil, nil, nil)
	watcher := NewIngestWatcher(center, projects, nc, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer watcher.Stop()

	pub := ingest.NewNATSPublisher(nc)
	if err := pub.Publish(ctx, ingest.Snapshot{
		ProjectID: proj.ID,
		Status:    ingest.StatusCompleted,
		Metrics:   map[string]int64{"files_parsed": 42},
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for center.UnreadCount(ctx, "org1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notification never arrived")
		}
		time.Sleep(20 * time.Millisecond)
	}

	notifs := center.List(ctx, "org1", false)
	if len(notifs) != 1 {
		t.Fatalf("len(notifs) = %d, want 1", len(notifs))
	}
	if notifs[0].Level != LevelSuccess {
		t.Errorf("level = %q, want %q", notifs[0].Level, LevelSuccess)
	}
	if notifs[0].ProjectID != proj.ID {
		t.Errorf("project = %q, want %q", notifs[0].ProjectID, proj.ID)
	}
}

func TestIngestWatcherFailure(t *testing.T) {
	nc := startNATS(t)
	ctx := context.Background()

	projects, _ := project.NewStore("")
	proj, _ := projects.Create(ctx, project.CreateRequest{OrgID: "org1", Name: "billing-service"})

	center := NewCenter(nil, nil, nil)
	watcher := NewIngestWatcher(center, projects, nc, nil)
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	pub := ingest.NewNATSPublisher(nc)
	pub.Publish(ctx, ingest.Snapshot{
		ProjectID:    proj.ID,
		Status:       ingest.StatusFailed,
		ErrorCode:    "clone_failed",
		ErrorMessage: "repository unreachable",
	})

	deadline := time.Now().Add(5 * time.Second)
	for center.UnreadCount(ctx, "org1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notification never arrived")
		}
		time.Sleep(20 * time.Millisecond)
	}

	notifs := center.List(ctx, "org1", false)
	if notifs[0].Level != LevelError {
		t.Errorf("level = %q, want %q", notifs[0].Level, LevelError)
	}
	if notifs[0].Body != "repository unreachable" {
		t.Errorf("body = %q", notifs[0].Body)
	}
}
