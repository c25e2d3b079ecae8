package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var ingestWatch bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <project-id>",
	Short: "Start an ingestion run",
	Long: `Start ingesting a project's linked repositories.

Examples:
  # Kick off a run and return immediately
  kijko ingest proj_abc123

  # Kick off a run and follow progress live
  kijko ingest proj_abc123 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show the current ingestion snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestStatus,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "follow progress after starting")
	ingestCmd.AddCommand(ingestStatusCmd)
}

// IngestionSnapshot matches the gateway's progress document.
type IngestionSnapshot struct {
	ProjectID      string           `json:"project_id"`
	Status         string           `json:"status"`
	Phase          string           `json:"phase"`
	PhasePercent   float64          `json:"phase_percent"`
	OverallPercent float64          `json:"overall_percent"`
	Message        string           `json:"message,omitempty"`
	Metrics        map[string]int64 `json:"metrics,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	ErrorCode      string           `json:"error_code,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	var snap IngestionSnapshot
	path := "/api/v1/projects/" + projectID + "/ingest"
	if err := apiRequest(http.MethodPost, path, nil, &snap); err != nil {
		return err
	}

	fmt.Printf("Ingestion started for %s (phase %s)\n", projectID, snap.Phase)
	if !ingestWatch {
		return nil
	}
	return watchProject(projectID)
}

func runIngestStatus(cmd *cobra.Command, args []string) error {
	var snap IngestionSnapshot
	path := "/api/v1/projects/" + args[0] + "/ingestion"
	if err := apiRequest(http.MethodGet, path, nil, &snap); err != nil {
		return err
	}

	fmt.Printf("Status:   %s\n", snap.Status)
	fmt.Printf("Phase:    %s (%.0f%%)\n", snap.Phase, snap.PhasePercent)
	fmt.Printf("Overall:  %.0f%%\n", snap.OverallPercent)
	if snap.Message != "" {
		fmt.Printf("Message:  %s\n", snap.Message)
	}
	if snap.ErrorMessage != "" {
		fmt.Printf("Error:    %s (%s)\n", snap.ErrorMessage, snap.ErrorCode)
	}
	if len(snap.Metrics) > 0 {
		var parts []string
		for _, key := range []string{"repositories_fetched", "files_parsed", "chunks_created", "chunks_indexed", "secrets_redacted", "tokens_estimated"} {
			if v, ok := snap.Metrics[key]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", key, v))
			}
		}
		fmt.Printf("Metrics:  %s\n", strings.Join(parts, " "))
	}
	return nil
}
