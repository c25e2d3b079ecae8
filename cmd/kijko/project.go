package main

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	projectDescription string
	projectType        string
	projectPrivacy     string
	repoProvider       string
	repoBranch         string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects on the gateway",
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	projectCreateCmd.Flags().StringVar(&projectType, "type", "repository", "project type (repository, files, manual)")
	projectCreateCmd.Flags().StringVar(&projectPrivacy, "privacy", "", "project privacy (private, organization, public)")
	projectAddRepoCmd.Flags().StringVar(&repoProvider, "provider", "github", "git provider (github, gitlab, bitbucket, azure)")
	projectAddRepoCmd.Flags().StringVar(&repoBranch, "branch", "", "branch to ingest (defaults to the remote default branch)")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectValidateCmd)
	projectCmd.AddCommand(projectAddRepoCmd)
	projectCmd.AddCommand(projectReposCmd)
}

// Project matches the gateway's project resource.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	TotalRepos  int       `json:"total_repos"`
	TotalFiles  int       `json:"total_files"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository matches the gateway's repository resource.
type Repository struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	URL      string `json:"repository_url"`
	Name     string `json:"repository_name"`
	Branch   string `json:"branch"`
	Status   string `json:"status"`
}

// NameValidation matches the gateway's validate/name response.
type NameValidation struct {
	Available bool   `json:"available"`
	Name      string `json:"name"`
	Message   string `json:"message,omitempty"`
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"name":        args[0],
			"description": projectDescription,
			"type":        projectType,
		}
		if projectPrivacy != "" {
			body["privacy"] = projectPrivacy
		}

		var proj Project
		if err := apiRequest(http.MethodPost, "/api/v1/projects", body, &proj); err != nil {
			return err
		}
		fmt.Printf("Created project %s (%s)\n", proj.Name, proj.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		var projects []Project
		if err := apiRequest(http.MethodGet, "/api/v1/projects", nil, &projects); err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tREPOS\tFILES")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", p.ID, p.Name, p.Status, p.TotalRepos, p.TotalFiles)
		}
		return w.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var proj Project
		if err := apiRequest(http.MethodGet, "/api/v1/projects/"+args[0], nil, &proj); err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", proj.ID)
		fmt.Printf("Name:        %s\n", proj.Name)
		if proj.Description != "" {
			fmt.Printf("Description: %s\n", proj.Description)
		}
		fmt.Printf("Type:        %s\n", proj.Type)
		fmt.Printf("Status:      %s\n", proj.Status)
		fmt.Printf("Repos:       %d\n", proj.TotalRepos)
		fmt.Printf("Files:       %d\n", proj.TotalFiles)
		fmt.Printf("Created:     %s\n", proj.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiRequest(http.MethodDelete, "/api/v1/projects/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Printf("Deleted project %s\n", args[0])
		return nil
	},
}

var projectValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Check whether a project name is available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var v NameValidation
		path := "/api/v1/validate/name?name=" + url.QueryEscape(args[0])
		if err := apiRequest(http.MethodGet, path, nil, &v); err != nil {
			return err
		}
		if v.Available {
			fmt.Printf("%q is available\n", args[0])
			return nil
		}
		fmt.Printf("%q is not available: %s\n", args[0], v.Message)
		return nil
	},
}

var projectAddRepoCmd = &cobra.Command{
	Use:   "add-repo <project-id> <repository-url>",
	Short: "Link a repository to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"provider":       repoProvider,
			"repository_url": args[1],
		}
		if repoBranch != "" {
			body["branch"] = repoBranch
		}

		var repo Repository
		path := "/api/v1/projects/" + args[0] + "/repositories"
		if err := apiRequest(http.MethodPost, path, body, &repo); err != nil {
			return err
		}
		fmt.Printf("Linked %s (branch %s) as %s\n", repo.URL, repo.Branch, repo.ID)
		return nil
	},
}

var projectReposCmd = &cobra.Command{
	Use:   "repos <project-id>",
	Short: "List a project's repositories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var repos []Repository
		path := "/api/v1/projects/" + args[0] + "/repositories"
		if err := apiRequest(http.MethodGet, path, nil, &repos); err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories linked.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tBRANCH\tSTATUS")
		for _, r := range repos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Provider, r.Branch, r.Status)
		}
		return w.Flush()
	},
}
