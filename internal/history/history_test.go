package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestCreateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "p1", "refactor discussion")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.Title != "refactor discussion" {
		t.Errorf("title = %q, want %q", session.Title, "refactor discussion")
	}

	// Blank titles get a default.
	session, err = s.CreateSession(ctx, "p1", "  ")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Title != "New chat" {
		t.Errorf("title = %q, want %q", session.Title, "New chat")
	}
}

func TestSessionsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateSession(ctx, "p1", "first")
	second, _ := s.CreateSession(ctx, "p1", "second")
	s.CreateSession(ctx, "p2", "other project")

	// Touch the first session so it becomes most recent.
	if _, err := s.Append(ctx, first.ID, RoleUser, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	sessions, err := s.Sessions(ctx, "p1")
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != first.ID {
		t.Errorf("sessions[0] = %s, want %s", sessions[0].ID, first.ID)
	}
	if sessions[1].ID != second.ID {
		t.Errorf("sessions[1] = %s, want %s", sessions[1].ID, second.ID)
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session, _ := s.CreateSession(ctx, "p1", "chat")

	tests := []struct {
		name      string
		sessionID string
		role      Role
		content   string
		wantErr   error
	}{
		{"empty content", session.ID, RoleUser, "  ", ErrEmptyContent},
		{"bad role", session.ID, Role("system"), "hi", ErrInvalidRole},
		{"unknown session", "nope", RoleUser, "hi", ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Append(ctx, tt.sessionID, tt.role, tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session, _ := s.CreateSession(ctx, "p1", "chat")

	s.Append(ctx, session.ID, RoleUser, "what does the parser phase skip?")
	s.Append(ctx, session.ID, RoleAssistant, "binary files and anything over the size cap")

	msgs, err := s.Messages(ctx, session.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("roles = %v, %v", msgs[0].Role, msgs[1].Role)
	}

	if _, err := s.Messages(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Messages(unknown) error = %v, want %v", err, ErrSessionNotFound)
	}
}

func TestMessageBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session, _ := s.CreateSession(ctx, "p1", "chat")

	for i := 0; i < maxMessagesPerSession+10; i++ {
		if _, err := s.Append(ctx, session.ID, RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	msgs, _ := s.Messages(ctx, session.ID)
	if len(msgs) != maxMessagesPerSession {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), maxMessagesPerSession)
	}
	// Oldest messages are evicted.
	if msgs[0].Content != "msg 10" {
		t.Errorf("msgs[0].Content = %q, want %q", msgs[0].Content, "msg 10")
	}
}

func TestSessionBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < maxSessionsPerProject+5; i++ {
		if _, err := s.CreateSession(ctx, "p1", fmt.Sprintf("chat %d", i)); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}

	sessions, _ := s.Sessions(ctx, "p1")
	if len(sessions) != maxSessionsPerProject {
		t.Fatalf("len(sessions) = %d, want %d", len(sessions), maxSessionsPerProject)
	}
}

func TestRenameAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session, _ := s.CreateSession(ctx, "p1", "chat")

	if err := s.Rename(ctx, session.ID, "ingestion questions"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	sessions, _ := s.Sessions(ctx, "p1")
	if sessions[0].Title != "ingestion questions" {
		t.Errorf("title = %q, want %q", sessions[0].Title, "ingestion questions")
	}

	if err := s.Rename(ctx, "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Rename(unknown) error = %v", err)
	}

	if err := s.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := s.DeleteSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("DeleteSession(twice) error = %v", err)
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	session, _ := s.CreateSession(ctx, "p1", "chat")
	s.Append(ctx, session.ID, RoleUser, "hello")

	reloaded, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore(reload) error = %v", err)
	}
	sessions, _ := reloaded.Sessions(ctx, "p1")
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	msgs, err := reloaded.Messages(ctx, session.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("reloaded messages = %+v", msgs)
	}
}
