// Package main implements the kijko CLI for operations against the
// kijkod gateway daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the kijkod HTTP server
	serverURL string
	// orgID and userID identify the caller to the gateway
	orgID  string
	userID string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kijko",
	Short: "CLI for the kijko ingestion gateway",
	Long: `kijko is a command-line interface for the kijkod gateway daemon.
It manages projects and their repositories, starts ingestion runs, and
follows ingestion progress live in the terminal.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "kijkod server URL")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", "default", "organization ID")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "default", "user ID")
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(healthCmd)
}

// apiRequest performs a JSON round trip against the gateway with
// identity headers attached. A nil body sends an empty request.
func apiRequest(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, serverURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", orgID)
	req.Header.Set("X-User-ID", userID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// healthCmd checks gateway health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check kijkod server health",
	Long: `Check the health status of the kijkod gateway.

Examples:
  # Check health
  kijko health

  # Check health on a different server
  kijko health --server http://localhost:9000`,
	RunE: runHealth,
}

// HealthResponse matches internal/server HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
	NATS   string `json:"nats"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := apiRequest(http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("NATS:          %s\n", resp.NATS)
	fmt.Printf("Server URL:    %s\n", serverURL)
	return nil
}
