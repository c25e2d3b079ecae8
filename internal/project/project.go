package project

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minNameLen = 3
	maxNameLen = 50
)

// ValidateName checks project name constraints: 3-50 characters after
// trimming, no leading/trailing whitespace stored.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidName, minNameLen)
	}
	if len(trimmed) > maxNameLen {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidName, maxNameLen)
	}
	return nil
}

// ValidateRepoURL checks that a repository source is http(s) or an absolute
// local path.
func ValidateRepoURL(rawURL string) error {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return nil
	case strings.HasPrefix(rawURL, "/"):
		return nil
	}
	return fmt.Errorf("%w: must start with http://, https://, or be an absolute path", ErrInvalidRepoURL)
}

// ValidateEmail checks member email shape.
func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	return nil
}

// New creates a project from a create request with a generated UUID.
// Zero-valued enum fields receive their defaults (repository type, private,
// semantic chunking) the way the creation wizard pre-fills them.
func New(req CreateRequest) (*Project, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}

	if req.Type == "" {
		req.Type = TypeRepository
	}
	if req.Privacy == "" {
		req.Privacy = PrivacyPrivate
	}
	if req.Chunking == "" {
		req.Chunking = ChunkingSemantic
	}

	now := time.Now()
	return &Project{
		ID:               uuid.New().String(),
		OrgID:            req.OrgID,
		UserID:           req.UserID,
		Name:             strings.TrimSpace(req.Name),
		Description:      req.Description,
		Type:             req.Type,
		Status:           StatusDraft,
		Privacy:          req.Privacy,
		Chunking:         req.Chunking,
		IncludeMeta:      req.IncludeMeta,
		AnonymizeSecrets: req.AnonymizeSecrets,
		CustomSettings:   req.CustomSettings,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// NewRepository creates a repository entity for a project.
func NewRepository(projectID string, req AddRepositoryRequest) (*Repository, error) {
	if err := ValidateRepoURL(req.URL); err != nil {
		return nil, err
	}
	if req.Name == "" {
		req.Name = repoNameFromURL(req.URL)
	}
	// An empty branch means the remote's default branch (HEAD) at clone
	// time, so no name is assumed here.

	now := time.Now()
	return &Repository{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Provider:     req.Provider,
		URL:          req.URL,
		Name:         req.Name,
		Branch:       req.Branch,
		Status:       RepoPending,
		IncludePaths: req.IncludePaths,
		ExcludePaths: req.ExcludePaths,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// repoNameFromURL derives a display name from the last path segment.
func repoNameFromURL(rawURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(rawURL, "/"), ".git")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "repository"
	}
	return trimmed
}

// NewMember creates a member entity for a project. Viewer is the default
// role; ingestion and error notifications default on.
func NewMember(projectID string, req InviteRequest) (*Member, error) {
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = RoleViewer
	}
	if !ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, req.Role)
	}

	return &Member{
		ID:                uuid.New().String(),
		ProjectID:         projectID,
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Name:              req.Name,
		Role:              req.Role,
		NotifyOnIngestion: true,
		NotifyOnError:     true,
		InvitedAt:         time.Now(),
	}, nil
}

// Apply mutates the project with the non-nil fields of an update request.
// Returns ErrInvalidName if a new name fails validation.
func (p *Project) Apply(req UpdateRequest) error {
	if req.Name != nil {
		if err := ValidateName(*req.Name); err != nil {
			return err
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Privacy != nil {
		p.Privacy = *req.Privacy
	}
	if req.Chunking != nil {
		p.Chunking = *req.Chunking
	}
	if req.IncludeMeta != nil {
		p.IncludeMeta = *req.IncludeMeta
	}
	if req.AnonymizeSecrets != nil {
		p.AnonymizeSecrets = *req.AnonymizeSecrets
	}
	if req.CustomSettings != nil {
		p.CustomSettings = req.CustomSettings
	}
	p.UpdatedAt = time.Now()
	return nil
}
