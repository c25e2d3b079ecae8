package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Anansitrading/kijko/internal/sources"
)

var (
	sourcesDeselect []string
	sourcesSelect   []string
	sourcesListAll  bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources <path>",
	Short: "Resolve include/exclude paths for a local checkout",
	Long: `Scan a local checkout and resolve a file selection into the minimal
include and exclude path lists the gateway understands.

Deselections and reselections nest: deselecting a directory excludes its
whole subtree, and selecting a path inside it brings that subtree back.

Examples:
  # Everything except generated code
  kijko sources . --deselect gen

  # Except generated code, but keep the checked-in protobufs
  kijko sources . --deselect gen --select gen/proto`,
	Args: cobra.ExactArgs(1),
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().StringArrayVar(&sourcesDeselect, "deselect", nil, "path to exclude (repeatable)")
	sourcesCmd.Flags().StringArrayVar(&sourcesSelect, "select", nil, "path to re-include (repeatable)")
	sourcesCmd.Flags().BoolVar(&sourcesListAll, "files", false, "list every selected file")
}

func runSources(cmd *cobra.Command, args []string) error {
	tree, err := sources.Scan(args[0])
	if err != nil {
		return fmt.Errorf("scanning %s: %w", args[0], err)
	}

	selection := sources.NewSelection(tree)
	for _, path := range sourcesDeselect {
		if err := selection.Set(path, false); err != nil {
			return fmt.Errorf("deselecting %s: %w", path, err)
		}
	}
	for _, path := range sourcesSelect {
		if err := selection.Set(path, true); err != nil {
			return fmt.Errorf("selecting %s: %w", path, err)
		}
	}

	selected := selection.SelectedFiles()
	fmt.Printf("Selected %d of %d files\n", len(selected), len(tree.Files()))

	include, exclude := selection.Resolve()
	if len(include) > 0 {
		fmt.Println("\nInclude paths:")
		for _, p := range include {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(exclude) > 0 {
		fmt.Println("\nExclude paths:")
		for _, p := range exclude {
			fmt.Printf("  %s\n", p)
		}
	}

	if sourcesListAll {
		fmt.Println("\nFiles:")
		for _, f := range selected {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}
