// Package history stores chat sessions and their messages per project.
// Sessions and messages live in memory with a JSON snapshot on disk, the
// same persistence shape the project store uses.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidRole     = errors.New("invalid message role")
)

// Bounds keep a noisy client from growing the snapshot without limit.
// The oldest entries are evicted first.
const (
	maxSessionsPerProject = 100
	maxMessagesPerSession = 500
)

// Role identifies the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one chat thread scoped to a project.
type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single chat turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps sessions and messages.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message
	path     string
}

// NewStore creates a store. An empty dir disables persistence.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		s.path = filepath.Join(dir, "history.json")
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateSession opens a new chat session for the project.
func (s *Store) CreateSession(_ context.Context, projectID, title string) (*Session, error) {
	if strings.TrimSpace(title) == "" {
		title = "New chat"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	s.evictSessionsLocked(projectID)

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	out := *session
	return &out, nil
}

// Sessions lists a project's sessions, most recently updated first.
func (s *Store) Sessions(_ context.Context, projectID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, session := range s.sessions {
		if session.ProjectID == projectID {
			cp := *session
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Rename updates a session title.
func (s *Store) Rename(_ context.Context, sessionID, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.Title = title
	session.UpdatedAt = time.Now()
	return s.persistLocked()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return s.persistLocked()
}

// Append adds a message to a session.
func (s *Store) Append(_ context.Context, sessionID string, role Role, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	msg := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	if n := len(s.messages[sessionID]); n > maxMessagesPerSession {
		s.messages[sessionID] = s.messages[sessionID][n-maxMessagesPerSession:]
	}
	session.UpdatedAt = msg.CreatedAt

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	out := *msg
	return &out, nil
}

// Messages returns a session's messages in insertion order.
func (s *Store) Messages(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	msgs := s.messages[sessionID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// evictSessionsLocked drops the oldest sessions above the per-project cap.
func (s *Store) evictSessionsLocked(projectID string) {
	var owned []*Session
	for _, session := range s.sessions {
		if session.ProjectID == projectID {
			owned = append(owned, session)
		}
	}
	if len(owned) <= maxSessionsPerProject {
		return
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.Before(owned[j].UpdatedAt)
	})
	for _, victim := range owned[:len(owned)-maxSessionsPerProject] {
		delete(s.sessions, victim.ID)
		delete(s.messages, victim.ID)
	}
}

type snapshot struct {
	Sessions []*Session            `json:"sessions"`
	Messages map[string][]*Message `json:"messages"`
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{Messages: s.messages}
	for _, session := range s.sessions {
		snap.Sessions = append(snap.Sessions, session)
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].CreatedAt.Before(snap.Sessions[j].CreatedAt)
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing history snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading history snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding history snapshot: %w", err)
	}

	for _, session := range snap.Sessions {
		s.sessions[session.ID] = session
	}
	if snap.Messages != nil {
		s.messages = snap.Messages
	}
	return nil
}
