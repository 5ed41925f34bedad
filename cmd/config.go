package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rnwolfe/envoluntary/internal/config"
	"github.com/rnwolfe/envoluntary/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and manage configuration",
}

var (
	configPath    string
	editorProgram string
	entryAdjacent string
	entryImpure   bool
)

func init() {
	configCmd.AddCommand(configPrintPathCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configAddEntryCmd)
	configCmd.AddCommand(configMatchingCmd)

	configCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Config file (default: $ENVOLUNTARY_CONFIG_PATH or XDG config)")
	configEditCmd.Flags().StringVar(&editorProgram, "editor-program", "", "Editor to run (default: $VISUAL, $EDITOR, vi)")
	configAddEntryCmd.Flags().StringVar(&entryAdjacent, "pattern-adjacent", "", "Only match when a sibling file matches this regex")
	configAddEntryCmd.Flags().BoolVar(&entryImpure, "impure", false, "Evaluate the flake with --impure")
}

var configPrintPathCmd = &cobra.Command{
	Use:   "print-path",
	Short: "Print configuration file path",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(config.ResolvePath(configPath))
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the configuration file in your editor",
	Args:  cobra.NoArgs,
	RunE:  runConfigEdit,
}

var configAddEntryCmd = &cobra.Command{
	Use:   "add-entry <pattern> <flake-reference>",
	Short: "Append an entry to the configuration",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigAddEntry,
}

var configMatchingCmd = &cobra.Command{
	Use:   "print-matching-entries <path>",
	Short: "Print the entries that match a directory, one JSON object per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigMatching,
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("config edit needs an interactive terminal")
	}
	path := config.ResolvePath(configPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(&config.Config{}, path); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	argv := strings.Fields(editorCommand(editorProgram))
	if len(argv) == 0 {
		return fmt.Errorf("no editor configured")
	}
	c := exec.Command(argv[0], append(argv[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("running %s: %w", argv[0], err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	compileEntries(cfg)
	ui.Ok(fmt.Sprintf("%s has %d entries", path, len(cfg.Entries)))
	return nil
}

// editorCommand picks flag, then $VISUAL, then $EDITOR, then vi.
func editorCommand(flag string) string {
	for _, v := range []string{flag, os.Getenv("VISUAL"), os.Getenv("EDITOR")} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "vi"
}

func runConfigAddEntry(_ *cobra.Command, args []string) error {
	e := config.Entry{
		Pattern:         args[0],
		PatternAdjacent: entryAdjacent,
		FlakeReference:  args[1],
	}
	if entryImpure {
		e.Impure = config.BoolPtr(true)
	}
	path := config.ResolvePath(configPath)
	if err := config.AddEntry(path, e); err != nil {
		return err
	}
	ui.Ok(fmt.Sprintf("Added %s %s %s", e.Pattern, ui.IconArrow, e.FlakeReference))
	return nil
}

func runConfigMatching(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	for _, e := range compileEntries(cfg).Match(dir) {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}
