package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/Anansitrading/kijko/internal/project"
)

// RepoChecker verifies that a repository URL is reachable before it is
// linked to a project. GitHub URLs go through the API so private
// repositories resolve with a token; everything else gets a HEAD probe.
type RepoChecker struct {
	gh   *github.Client
	http *http.Client
}

// NewRepoChecker creates a checker. An empty token limits GitHub checks
// to public repositories.
func NewRepoChecker(githubToken string, httpClient *http.Client) *RepoChecker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	ghHTTP := httpClient
	if githubToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: githubToken})
		ghHTTP = oauth2.NewClient(context.Background(), src)
	}

	return &RepoChecker{
		gh:   github.NewClient(ghHTTP),
		http: httpClient,
	}
}

// Check reports whether the repository at rawURL is accessible.
func (rc *RepoChecker) Check(ctx context.Context, provider project.GitProvider, rawURL string) project.URLValidation {
	result := project.URLValidation{URL: rawURL}

	if err := project.ValidateRepoURL(rawURL); err != nil {
		result.Message = err.Error()
		return result
	}

	if provider == project.ProviderGitHub {
		return rc.checkGitHub(ctx, rawURL)
	}
	return rc.checkHEAD(ctx, rawURL)
}

func (rc *RepoChecker) checkGitHub(ctx context.Context, rawURL string) project.URLValidation {
	result := project.URLValidation{URL: rawURL}

	owner, repo, err := splitGitHubURL(rawURL)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	_, resp, err := rc.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			result.Message = "repository not found or not accessible"
		} else {
			result.Message = fmt.Sprintf("github lookup failed: %v", err)
		}
		return result
	}

	result.Accessible = true
	return result
}

func (rc *RepoChecker) checkHEAD(ctx context.Context, rawURL string) project.URLValidation {
	result := project.URLValidation{URL: rawURL}

	// Local paths are checked by the clone itself.
	if strings.HasPrefix(rawURL, "/") {
		result.Accessible = true
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	resp, err := rc.http.Do(req)
	if err != nil {
		result.Message = fmt.Sprintf("repository unreachable: %v", err)
		return result
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		result.Message = fmt.Sprintf("repository returned status %d", resp.StatusCode)
		return result
	}

	result.Accessible = true
	return result
}

// splitGitHubURL extracts owner and repo from a github.com URL.
func splitGitHubURL(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid url: %w", err)
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return "", "", fmt.Errorf("not a github.com url: %s", u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("url must contain owner and repository")
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
