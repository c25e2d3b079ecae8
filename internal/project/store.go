package project

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
)

// Store provides CRUD operations for projects, repositories, and members.
type Store interface {
	// Create creates a new project. Names are unique per organization.
	Create(ctx context.Context, req CreateRequest) (*Project, error)

	// Get retrieves a project by ID.
	Get(ctx context.Context, id string) (*Project, error)

	// List returns all projects for an organization, newest first.
	List(ctx context.Context, orgID string) ([]*Project, error)

	// Update applies an update request to a project.
	Update(ctx context.Context, id string, req UpdateRequest) (*Project, error)

	// Delete removes a project and its repositories and members.
	Delete(ctx context.Context, id string) error

	// SetStatus transitions a project's lifecycle status.
	SetStatus(ctx context.Context, id string, status Status) error

	// RecordIngestion stores the outcome of a pipeline run on the project.
	RecordIngestion(ctx context.Context, id string, outcome IngestionOutcome) error

	// NameAvailable checks project name uniqueness within an organization.
	NameAvailable(ctx context.Context, orgID, name string) (*NameValidation, error)

	// AddRepository links a repository to a project.
	AddRepository(ctx context.Context, projectID string, req AddRepositoryRequest) (*Repository, error)

	// Repositories lists a project's repositories.
	Repositories(ctx context.Context, projectID string) ([]*Repository, error)

	// UpdateRepository replaces a stored repository entity.
	UpdateRepository(ctx context.Context, repo *Repository) error

	// Invite adds a member to a project. Emails are unique per project.
	Invite(ctx context.Context, projectID string, req InviteRequest) (*Member, error)

	// BulkInvite adds several members, skipping duplicates. Returns the
	// members actually created.
	BulkInvite(ctx context.Context, projectID string, req BulkInviteRequest) ([]*Member, error)

	// Members lists a project's members.
	Members(ctx context.Context, projectID string) ([]*Member, error)

	// RemoveMember removes a member by ID.
	RemoveMember(ctx context.Context, projectID, memberID string) error
}

// store implements Store with mutex-guarded maps and an optional JSON
// snapshot on disk, written after every mutation. Entities are copied on
// the way in and out so callers never share memory with the store.
type store struct {
	mu       sync.RWMutex
	projects map[string]*Project             // id -> project
	repos    map[string][]*Repository        // project id -> repositories
	members  map[string]map[string]*Member   // project id -> member id -> member
	path     string                          // snapshot file, empty disables persistence
}

// snapshot is the on-disk representation of the store.
type snapshot struct {
	Projects     []*Project    `json:"projects"`
	Repositories []*Repository `json:"repositories"`
	Members      []*Member     `json:"members"`
	SavedAt      time.Time     `json:"saved_at"`
}

// NewStore creates an in-memory project store. If dir is non-empty, the
// store persists a JSON snapshot to dir/projects.json after every mutation
// and loads it on startup.
func NewStore(dir string) (Store, error) {
	s := &store{
		projects: make(map[string]*Project),
		repos:    make(map[string][]*Repository),
		members:  make(map[string]map[string]*Member),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		s.path = filepath.Join(dir, "projects.json")
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading project store: %w", err)
		}
	}

	return s, nil
}

func (s *store) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findByName(req.OrgID, req.Name); existing != nil {
		return nil, fmt.Errorf("%w: %q in organization %s", ErrProjectExists, req.Name, req.OrgID)
	}

	p, err := New(req)
	if err != nil {
		return nil, err
	}

	s.projects[p.ID] = p
	return cloneProject(p), s.persist()
}

func (s *store) Get(ctx context.Context, id string) (*Project, error) {
	if id == "" {
		return nil, ErrInvalidProjectID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return cloneProject(p), nil
}

func (s *store) List(ctx context.Context, orgID string) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		if orgID == "" || p.OrgID == orgID {
			projects = append(projects, cloneProject(p))
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (s *store) Update(ctx context.Context, id string, req UpdateRequest) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	if req.Name != nil {
		if other := s.findByName(p.OrgID, *req.Name); other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: %q in organization %s", ErrProjectExists, *req.Name, p.OrgID)
		}
	}

	if err := p.Apply(req); err != nil {
		return nil, err
	}
	return cloneProject(p), s.persist()
}

func (s *store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	delete(s.projects, id)
	delete(s.repos, id)
	delete(s.members, id)
	return s.persist()
}

func (s *store) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return s.persist()
}

func (s *store) RecordIngestion(ctx context.Context, id string, outcome IngestionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	p.Status = outcome.Status
	p.TotalFiles = outcome.TotalFiles
	p.OriginalTokens = outcome.OriginalTokens
	p.OptimizedTokens = outcome.OptimizedTokens
	p.IngestionTime = int64(outcome.Duration.Seconds())
	p.UpdatedAt = time.Now()
	return s.persist()
}

func (s *store) NameAvailable(ctx context.Context, orgID, name string) (*NameValidation, error) {
	if err := ValidateName(name); err != nil {
		return &NameValidation{
			Available: false,
			Name:      name,
			Message:   err.Error(),
		}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.findByName(orgID, name) != nil {
		return &NameValidation{
			Available: false,
			Name:      name,
			Message:   "a project with this name already exists",
		}, nil
	}
	return &NameValidation{Available: true, Name: name}, nil
}

func (s *store) AddRepository(ctx context.Context, projectID string, req AddRepositoryRequest) (*Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	repo, err := NewRepository(projectID, req)
	if err != nil {
		return nil, err
	}

	s.repos[projectID] = append(s.repos[projectID], repo)
	p.TotalRepos = len(s.repos[projectID])
	p.UpdatedAt = time.Now()
	return cloneRepository(repo), s.persist()
}

func (s *store) Repositories(ctx context.Context, projectID string) ([]*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	repos := make([]*Repository, 0, len(s.repos[projectID]))
	for _, r := range s.repos[projectID] {
		repos = append(repos, cloneRepository(r))
	}
	return repos, nil
}

func (s *store) UpdateRepository(ctx context.Context, repo *Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.repos[repo.ProjectID]
	for i, r := range list {
		if r.ID == repo.ID {
			cp := cloneRepository(repo)
			cp.UpdatedAt = time.Now()
			list[i] = cp
			return s.persist()
		}
	}
	return fmt.Errorf("%w: %s", ErrRepositoryNotFound, repo.ID)
}

func (s *store) Invite(ctx context.Context, projectID string, req InviteRequest) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.inviteLocked(projectID, req)
	if err != nil {
		return nil, err
	}
	return cloneMember(m), s.persist()
}

func (s *store) BulkInvite(ctx context.Context, projectID string, req BulkInviteRequest) ([]*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]*Member, 0, len(req.Emails))
	for _, email := range req.Emails {
		m, err := s.inviteLocked(projectID, InviteRequest{Email: email, Role: req.Role})
		if err != nil {
			// Duplicates are skipped, anything else aborts the batch.
			if errors.Is(err, ErrMemberExists) {
				continue
			}
			return nil, err
		}
		created = append(created, cloneMember(m))
	}
	return created, s.persist()
}

func (s *store) Members(ctx context.Context, projectID string) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	byID := s.members[projectID]
	members := make([]*Member, 0, len(byID))
	for _, m := range byID {
		members = append(members, cloneMember(m))
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].InvitedAt.Before(members[j].InvitedAt)
	})
	return members, nil
}

func (s *store) RemoveMember(ctx context.Context, projectID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.members[projectID]
	if _, ok := byID[memberID]; !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	delete(byID, memberID)
	return s.persist()
}

// inviteLocked adds a member while holding the write lock.
func (s *store) inviteLocked(projectID string, req InviteRequest) (*Member, error) {
	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	m, err := NewMember(projectID, req)
	if err != nil {
		return nil, err
	}

	byID := s.members[projectID]
	if byID == nil {
		byID = make(map[string]*Member)
		s.members[projectID] = byID
	}
	for _, existing := range byID {
		if existing.Email == m.Email {
			return nil, fmt.Errorf("%w: %s", ErrMemberExists, m.Email)
		}
	}

	byID[m.ID] = m
	return m, nil
}

// cloneProject returns a copy safe to hand outside the store lock.
func cloneProject(p *Project) *Project {
	cp := *p
	if p.CustomSettings != nil {
		cp.CustomSettings = make(map[string]any, len(p.CustomSettings))
		for k, v := range p.CustomSettings {
			cp.CustomSettings[k] = v
		}
	}
	return &cp
}

func cloneRepository(r *Repository) *Repository {
	cp := *r
	cp.IncludePaths = append([]string(nil), r.IncludePaths...)
	cp.ExcludePaths = append([]string(nil), r.ExcludePaths...)
	if r.LastSyncAt != nil {
		ts := *r.LastSyncAt
		cp.LastSyncAt = &ts
	}
	return &cp
}

func cloneMember(m *Member) *Member {
	cp := *m
	return &cp
}

// findByName returns the project with the given name in orgID, or nil.
// Caller must hold at least a read lock. Comparison is case-insensitive.
func (s *store) findByName(orgID, name string) *Project {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, p := range s.projects {
		if p.OrgID == orgID && strings.ToLower(p.Name) == want {
			return p
		}
	}
	return nil
}

// persist writes the JSON snapshot. Caller must hold the write lock.
func (s *store) persist() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{SavedAt: time.Now()}
	for _, p := range s.projects {
		snap.Projects = append(snap.Projects, p)
	}
	for _, list := range s.repos {
		snap.Repositories = append(snap.Repositories, list...)
	}
	for _, byID := range s.members {
		for _, m := range byID {
			snap.Members = append(snap.Members, m)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store snapshot: %w", err)
	}

	// Write-then-rename so a crash never leaves a truncated snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing store snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// load restores the snapshot if one exists.
func (s *store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding store snapshot: %w", err)
	}

	for _, p := range snap.Projects {
		s.projects[p.ID] = p
	}
	for _, r := range snap.Repositories {
		s.repos[r.ProjectID] = append(s.repos[r.ProjectID], r)
	}
	for _, m := range snap.Members {
		byID := s.members[m.ProjectID]
		if byID == nil {
			byID = make(map[string]*Member)
			s.members[m.ProjectID] = byID
		}
		byID[m.ID] = m
	}
	return nil
}
