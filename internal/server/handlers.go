package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Anansitrading/kijko/internal/history"
	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/notify"
	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/realtime"
)

// Identity headers set by the fronting auth proxy.
const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, project.ErrProjectNotFound),
		errors.Is(err, project.ErrRepositoryNotFound),
		errors.Is(err, project.ErrMemberNotFound),
		errors.Is(err, ingest.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, history.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, project.ErrProjectExists),
		errors.Is(err, project.ErrMemberExists),
		errors.Is(err, ingest.ErrAlreadyRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, project.ErrInvalidName),
		errors.Is(err, project.ErrInvalidRepoURL),
		errors.Is(err, project.ErrInvalidEmail),
		errors.Is(err, project.ErrInvalidRole),
		errors.Is(err, project.ErrInvalidProjectID),
		errors.Is(err, ingest.ErrNoRepositories),
		errors.Is(err, history.ErrEmptyContent),
		errors.Is(err, history.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req project.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrgID == "" {
		req.OrgID = c.Request().Header.Get(headerOrgID)
	}
	if req.UserID == "" {
		req.UserID = c.Request().Header.Get(headerUserID)
	}

	proj, err := s.projects.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, proj)
}

func (s *Server) handleListProjects(c echo.Context) error {
	orgID := c.QueryParam("organization_id")
	if orgID == "" {
		orgID = c.Request().Header.Get(headerOrgID)
	}

	projects, err := s.projects.List(c.Request().Context(), orgID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *Server) handleGetProject(c echo.Context) error {
	proj, err := s.projects.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, proj)
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	var req project.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	proj, err := s.projects.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, proj)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	if err := s.projects.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddRepository(c echo.Context) error {
	var req project.AddRepositoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	repo, err := s.projects.AddRepository(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, repo)
}

func (s *Server) handleListRepositories(c echo.Context) error {
	repos, err := s.projects.Repositories(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, repos)
}

func (s *Server) handleInviteMember(c echo.Context) error {
	var req project.InviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	member, err := s.projects.Invite(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, member)
}

func (s *Server) handleBulkInvite(c echo.Context) error {
	var req project.BulkInviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	members, err := s.projects.BulkInvite(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, members)
}

func (s *Server) handleListMembers(c echo.Context) error {
	members, err := s.projects.Members(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, members)
}

func (s *Server) handleRemoveMember(c echo.Context) error {
	err := s.projects.RemoveMember(c.Request().Context(), c.Param("id"), c.Param("memberID"))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleValidateName(c echo.Context) error {
	name := c.QueryParam("name")
	orgID := c.QueryParam("organization_id")
	if orgID == "" {
		orgID = c.Request().Header.Get(headerOrgID)
	}
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name query parameter is required")
	}

	validation, err := s.projects.NameAvailable(c.Request().Context(), orgID, name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, validation)
}

// ValidateRepositoryRequest is the body for POST /validate/repository.
type ValidateRepositoryRequest struct {
	Provider project.GitProvider `json:"provider"`
	URL      string              `json:"repository_url"`
}

func (s *Server) handleValidateRepository(c echo.Context) error {
	var req ValidateRepositoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repository_url is required")
	}

	result := s.checker.Check(c.Request().Context(), req.Provider, req.URL)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStartIngestion(c echo.Context) error {
	snap, err := s.pipeline.Start(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, snap)
}

// handleIngestionSnapshot serves the current progress document. Clients
// that lost their WebSocket poll this endpoint.
func (s *Server) handleIngestionSnapshot(c echo.Context) error {
	snap, err := s.pipeline.Snapshot(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleIngestionEvents(c echo.Context) error {
	if s.nc == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream unavailable")
	}
	return realtime.HandleSSE(c, s.nc, c.Param("id"))
}

func (s *Server) handleListNotifications(c echo.Context) error {
	orgID := c.Request().Header.Get(headerOrgID)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "organization header is required")
	}
	unreadOnly := c.QueryParam("unread") == "true"

	notifs := s.notifier.List(c.Request().Context(), orgID, unreadOnly)
	return c.JSON(http.StatusOK, map[string]any{
		"notifications": notifs,
		"unread_count":  s.notifier.UnreadCount(c.Request().Context(), orgID),
	})
}

func (s *Server) handleMarkNotificationRead(c echo.Context) error {
	orgID := c.Request().Header.Get(headerOrgID)
	if err := s.notifier.MarkRead(c.Request().Context(), orgID, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMarkAllNotificationsRead(c echo.Context) error {
	orgID := c.Request().Header.Get(headerOrgID)
	s.notifier.MarkAllRead(c.Request().Context(), orgID)
	return c.NoContent(http.StatusNoContent)
}

// CreateSessionRequest is the body for POST /projects/:id/sessions.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	projectID := c.Param("id")
	if _, err := s.projects.Get(c.Request().Context(), projectID); err != nil {
		return httpError(err)
	}

	session, err := s.sessions.CreateSession(c.Request().Context(), projectID, req.Title)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions, err := s.sessions.Sessions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// RenameSessionRequest is the body for PATCH /sessions/:sessionID.
type RenameSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameSession(c echo.Context) error {
	var req RenameSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	if err := s.sessions.Rename(c.Request().Context(), c.Param("sessionID"), req.Title); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.sessions.DeleteSession(c.Request().Context(), c.Param("sessionID")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AppendMessageRequest is the body for POST /sessions/:sessionID/messages.
type AppendMessageRequest struct {
	Role    history.Role `json:"role"`
	Content string       `json:"content"`
}

func (s *Server) handleAppendMessage(c echo.Context) error {
	var req AppendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.sessions.Append(c.Request().Context(), c.Param("sessionID"), req.Role, req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleListMessages(c echo.Context) error {
	msgs, err := s.sessions.Messages(c.Request().Context(), c.Param("sessionID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}
