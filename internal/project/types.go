// Package project defines the project domain: projects, their repositories,
// their members, and the ingestion progress document attached to each
// project while the pipeline runs.
package project

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberExists       = errors.New("member already exists")
	ErrInvalidProjectID   = errors.New("invalid project ID")
	ErrInvalidName        = errors.New("invalid project name")
	ErrInvalidRepoURL     = errors.New("invalid repository URL")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("invalid member role")
)

// Type classifies how a project's content arrives.
type Type string

const (
	TypeRepository Type = "repository"
	TypeFiles      Type = "files"
	TypeManual     Type = "manual"
)

// Status is the project lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusActive     Status = "active"
	StatusError      Status = "error"
)

// Privacy controls project visibility inside an organization.
type Privacy string

const (
	PrivacyPrivate Privacy = "private"
	PrivacyShared  Privacy = "shared"
)

// ChunkingStrategy selects how source files are split before indexing.
type ChunkingStrategy string

const (
	ChunkingSemantic  ChunkingStrategy = "semantic"
	ChunkingFixed     ChunkingStrategy = "fixed"
	ChunkingRecursive ChunkingStrategy = "recursive"
	ChunkingCustom    ChunkingStrategy = "custom"
)

// GitProvider identifies a repository host.
type GitProvider string

const (
	ProviderGitHub    GitProvider = "github"
	ProviderGitLab    GitProvider = "gitlab"
	ProviderBitbucket GitProvider = "bitbucket"
	ProviderAzure     GitProvider = "azure"
)

// RepositoryStatus is the sync state of a linked repository.
type RepositoryStatus string

const (
	RepoPending   RepositoryStatus = "pending"
	RepoConnected RepositoryStatus = "connected"
	RepoSyncing   RepositoryStatus = "syncing"
	RepoError     RepositoryStatus = "error"
)

// MemberRole is a member's permission level within a project.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleManager   MemberRole = "manager"
	RoleDeveloper MemberRole = "developer"
	RoleViewer    MemberRole = "viewer"
	RoleAuditor   MemberRole = "auditor"
)

// ValidRole reports whether r is a known member role.
func ValidRole(r MemberRole) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper, RoleViewer, RoleAuditor:
		return true
	}
	return false
}

// Project is a user's codebase registered for ingestion.
type Project struct {
	ID             string           `json:"id"`
	OrgID          string           `json:"organization_id"`
	UserID         string           `json:"user_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Type           Type             `json:"type"`
	Status         Status           `json:"status"`
	Privacy        Privacy          `json:"privacy"`
	Chunking       ChunkingStrategy `json:"chunking_strategy"`
	IncludeMeta    bool             `json:"include_metadata"`
	AnonymizeSecrets bool           `json:"anonymize_secrets"`
	CustomSettings map[string]any   `json:"custom_settings,omitempty"`

	TotalRepos      int   `json:"total_repos"`
	TotalFiles      int   `json:"total_files"`
	OriginalTokens  int64 `json:"original_tokens,omitempty"`
	OptimizedTokens int64 `json:"optimized_tokens,omitempty"`
	IngestionTime   int64 `json:"ingestion_time_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IngestionOutcome is written back to the project when a pipeline run ends.
type IngestionOutcome struct {
	Status          Status
	TotalFiles      int
	OriginalTokens  int64
	OptimizedTokens int64
	Duration        time.Duration
}

// Repository is a git repository linked to a project.
type Repository struct {
	ID           string           `json:"id"`
	ProjectID    string           `json:"project_id"`
	Provider     GitProvider      `json:"provider"`
	URL          string           `json:"repository_url"`
	Name         string           `json:"repository_name"`
	Branch       string           `json:"branch"`
	Status       RepositoryStatus `json:"status"`
	LastSyncAt   *time.Time       `json:"last_sync_at,omitempty"`
	LastCommit   string           `json:"last_commit_hash,omitempty"`
	FileCount    int              `json:"file_count,omitempty"`
	IncludePaths []string         `json:"include_paths"`
	ExcludePaths []string         `json:"exclude_paths"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Member is a user invited to collaborate on a project.
type Member struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Role      MemberRole `json:"role"`

	NotifyOnIngestion   bool `json:"notify_on_ingestion"`
	NotifyOnError       bool `json:"notify_on_error"`
	NotifyOnTeamChanges bool `json:"notify_on_team_changes"`

	InvitedAt    time.Time  `json:"invited_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// CreateRequest is the input for creating a project.
type CreateRequest struct {
	OrgID            string           `json:"organization_id"`
	UserID           string           `json:"user_id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Type             Type             `json:"type"`
	Privacy          Privacy          `json:"privacy"`
	Chunking         ChunkingStrategy `json:"chunking_strategy"`
	IncludeMeta      bool             `json:"include_metadata"`
	AnonymizeSecrets bool             `json:"anonymize_secrets"`
	CustomSettings   map[string]any   `json:"custom_settings"`
}

// UpdateRequest is the input for updating a project. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Name             *string           `json:"name"`
	Description      *string           `json:"description"`
	Privacy          *Privacy          `json:"privacy"`
	Chunking         *ChunkingStrategy `json:"chunking_strategy"`
	IncludeMeta      *bool             `json:"include_metadata"`
	AnonymizeSecrets *bool             `json:"anonymize_secrets"`
	CustomSettings   map[string]any    `json:"custom_settings"`
}

// AddRepositoryRequest is the input for linking a repository.
type AddRepositoryRequest struct {
	Provider     GitProvider `json:"provider"`
	URL          string      `json:"repository_url"`
	Name         string      `json:"repository_name"`
	Branch       string      `json:"branch"`
	IncludePaths []string    `json:"include_paths"`
	ExcludePaths []string    `json:"exclude_paths"`
}

// InviteRequest is the input for adding a member.
type InviteRequest struct {
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  MemberRole `json:"role"`
}

// BulkInviteRequest invites several members at once with a shared role.
type BulkInviteRequest struct {
	Emails []string   `json:"emails"`
	Role   MemberRole `json:"role"`
}

// NameValidation is the response for a project name availability check.
type NameValidation struct {
	Available bool   `json:"available"`
	Name      string `json:"name"`
	Message   string `json:"message,omitempty"`
}

// URLValidation is the response for a repository URL accessibility check.
type URLValidation struct {
	Accessible bool   `json:"accessible"`
	URL        string `json:"url"`
	Message    string `json:"message,omitempty"`
}
