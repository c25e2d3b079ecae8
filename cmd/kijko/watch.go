package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Anansitrading/kijko/internal/tui"
	"github.com/Anansitrading/kijko/pkg/progress"
)

var watchToken string

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Follow ingestion progress live",
	Long: `Follow a project's ingestion progress in a live terminal dashboard.

The dashboard subscribes to the gateway's WebSocket feed and falls back
to HTTP polling when the connection cannot be established. Press r to
force a reconnect attempt and q to quit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchProject(args[0])
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchToken, "token", "", "WebSocket auth token (defaults to user:org)")
}

func watchProject(projectID string) error {
	token := watchToken
	if token == "" {
		token = userID + ":" + orgID
	}

	onSnapshot, onState, updates := tui.Pump()

	client, err := progress.New(progress.Options{
		BaseURL:    serverURL,
		ProjectID:  projectID,
		Token:      token,
		OnSnapshot: onSnapshot,
		OnState:    onState,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	model := tui.NewModel(projectID, client, updates)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
