package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rnwolfe/envoluntary/internal/cache"
	"github.com/rnwolfe/envoluntary/internal/config"
	"github.com/rnwolfe/envoluntary/internal/hook"
	"github.com/rnwolfe/envoluntary/internal/match"
	"github.com/rnwolfe/envoluntary/internal/nix"
	"github.com/rnwolfe/envoluntary/internal/shell"
	"github.com/rnwolfe/envoluntary/internal/store"
	"github.com/rnwolfe/envoluntary/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Shell integration",
	Long:  `Install the prompt hook, export environments and inspect the profile cache.`,
}

var (
	exportOpts       exportOptions
	exportRefs       []string
	printCacheRef    string
	printCacheImpure bool
	shellCacheDir    string
	shellConfigPath  string
	cacheCleanImpure bool
	historyLimit     int
)

func init() {
	shellCmd.AddCommand(shellHookCmd)
	shellCmd.AddCommand(shellExportCmd)
	shellCmd.AddCommand(shellCheckNixCmd)
	shellCmd.AddCommand(shellPrintCachePathCmd)
	shellCmd.AddCommand(shellCacheCmd)
	shellCmd.AddCommand(shellHistoryCmd)
	shellCacheCmd.AddCommand(shellCacheListCmd)
	shellCacheCmd.AddCommand(shellCacheCleanCmd)

	shellCmd.PersistentFlags().StringVar(&shellConfigPath, "config-path", "", "Config file (default: $ENVOLUNTARY_CONFIG_PATH or XDG config)")
	shellCmd.PersistentFlags().StringVar(&shellCacheDir, "cache-dir", "", "Profile cache directory (default: config cache_dir or XDG cache)")

	addExportFlags(shellExportCmd.Flags(), &exportOpts)

	shellPrintCachePathCmd.Flags().StringVar(&printCacheRef, "flake-reference", "", "Flake reference")
	shellPrintCachePathCmd.Flags().BoolVar(&printCacheImpure, "impure", false, "Use the impure cache slot")
	_ = shellPrintCachePathCmd.MarkFlagRequired("flake-reference")

	shellCacheCleanCmd.Flags().BoolVar(&cacheCleanImpure, "impure", false, "Remove the impure slot of REF")
	shellHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of builds to show")
}

func addExportFlags(f *pflag.FlagSet, o *exportOptions) {
	f.BoolVar(&o.Force, "force-update", false, "Rebuild every matched environment")
	f.StringArrayVar(&exportRefs, "flake-references", nil, "Load these flakes instead of matching the directory (repeatable)")
	f.StringVar(&o.Dir, "current-dir", "", "Directory to match (default: working directory)")
	f.DurationVar(&o.BuildTimeout, "build-timeout", 0, "Abort builds that take longer than this")
}

var shellHookCmd = &cobra.Command{
	Use:       "hook <bash|zsh|fish|nushell>",
	Short:     "Print the prompt hook for your shell",
	Long:      "Print the prompt hook. Add `eval \"$(envoluntary shell hook bash)\"` to your shell's rc file.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{shell.Bash, shell.Zsh, shell.Fish, shell.Nushell},
	RunE:      runShellHook,
}

var shellExportCmd = &cobra.Command{
	Use:       "export <bash|zsh|fish|nushell|json>",
	Short:     "Print the environment changes for the current directory",
	Args:      cobra.ExactArgs(1),
	ValidArgs: shell.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := exportOpts
		opts.Shell = args[0]
		opts.ConfigPath = shellConfigPath
		opts.CacheDir = shellCacheDir
		if cmd.Flags().Changed("flake-references") {
			opts.FlakeReferences = append([]string{}, exportRefs...)
		}
		return runShellExport(cmd.Context(), opts, os.Stdout)
	},
}

var shellCheckNixCmd = &cobra.Command{
	Use:   "check-nix-version",
	Short: "Check that the installed nix is recent enough",
	Args:  cobra.NoArgs,
	RunE:  runCheckNixVersion,
}

var shellPrintCachePathCmd = &cobra.Command{
	Use:   "print-cache-path",
	Short: "Print the cache directory of a flake",
	Args:  cobra.NoArgs,
	RunE:  runPrintCachePath,
}

var shellCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the profile cache",
}

var shellCacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached profiles",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var shellCacheCleanCmd = &cobra.Command{
	Use:   "clean [REF]",
	Short: "Remove one cached profile, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClean,
}

var shellHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent environment builds",
	Args:  cobra.NoArgs,
	RunE:  runShellHistory,
}

func runShellHook(_ *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating envoluntary: %w", err)
	}
	export, err := shell.ExportCommand(args[0], exe)
	if err != nil {
		return err
	}
	script, err := shell.HookScript(args[0], export)
	if err != nil {
		return err
	}
	fmt.Print(script)
	return nil
}

// exportOptions holds everything one `shell export` needs.
type exportOptions struct {
	Shell           string
	Force           bool
	FlakeReferences []string
	Dir             string
	ConfigPath      string
	CacheDir        string
	BuildTimeout    time.Duration

	// Builder replaces the nix builder. Nil means nix with build history.
	Builder cache.Builder
}

// runShellExport runs one hook cycle and writes the script to w. Only the
// script goes to w; every diagnostic goes to the ui stream.
func runShellExport(ctx context.Context, opts exportOptions, w io.Writer) error {
	dialect, err := shell.For(opts.Shell)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(config.ResolvePath(opts.ConfigPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var matcher *match.Matcher
	if opts.FlakeReferences == nil {
		matcher = compileEntries(cfg)
	}

	c, err := openCache(opts.CacheDir, cfg)
	if err != nil {
		return err
	}

	builder := opts.Builder
	if builder == nil {
		rec := &store.Recorder{Builder: nix.NewBuilder(os.Stderr), Open: store.Open}
		defer rec.Close()
		builder = rec
	}

	dir := opts.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
	}

	if opts.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.BuildTimeout)
		defer cancel()
	}

	res, err := hook.New(matcher, c, builder).Run(ctx, hook.Request{
		Dir:             dir,
		Env:             environMap(),
		FlakeReferences: opts.FlakeReferences,
		Force:           opts.Force,
		Representable:   dialect.Representable,
	})
	if err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		ui.Warn(warning.Error())
	}
	for _, k := range res.Built {
		ui.Debugf("built %s", k)
	}

	script, errs := dialect.Render(res.Transition)
	for _, e := range errs {
		ui.Warn(e.Error())
	}
	if !res.Transition.Empty() {
		switch {
		case res.Phase == hook.PhaseLoaded:
			ui.Inf(ui.IconNix + "loaded " + strings.Join(res.State.FlakeReferences, ", "))
		case res.Previous == hook.PhaseLoaded:
			ui.Inf(ui.IconNix + "unloaded")
		}
	}
	_, err = io.WriteString(w, script)
	return err
}

func compileEntries(cfg *config.Config) *match.Matcher {
	home, _ := os.UserHomeDir()
	m, errs := match.Compile(cfg.Entries, home)
	for _, err := range errs {
		ui.Warn(err.Error())
	}
	return m
}

func openCache(provided string, cfg *config.Config) (*cache.Cache, error) {
	timeout, err := cfg.LockTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return cache.New(config.ResolveCacheDir(provided, cfg), cache.WithLockTimeout(timeout)), nil
}

func loadShellConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(shellConfigPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func environMap() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func runCheckNixVersion(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	if cmd != nil && cmd.Context() != nil {
		ctx = cmd.Context()
	}
	v, err := (&nix.Runner{}).CheckVersion(ctx)
	if err != nil {
		return err
	}
	ui.Ok(fmt.Sprintf("nix %s (>= %s required)", v, nix.MinimumVersion))
	return nil
}

func runPrintCachePath(_ *cobra.Command, _ []string) error {
	cfg, err := loadShellConfig()
	if err != nil {
		return err
	}
	c, err := openCache(shellCacheDir, cfg)
	if err != nil {
		return err
	}
	fmt.Println(c.Path(cache.Key{FlakeReference: printCacheRef, Impure: printCacheImpure}))
	return nil
}

func runCacheList(_ *cobra.Command, _ []string) error {
	cfg, err := loadShellConfig()
	if err != nil {
		return err
	}
	c, err := openCache(shellCacheDir, cfg)
	if err != nil {
		return err
	}
	profiles, err := c.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		ui.Inf("No cached profiles in " + c.Root())
		return nil
	}
	for _, p := range profiles {
		fmt.Printf("%s  %s  %s\n",
			ui.Accent.Render(p.Key().String()),
			ui.Muted.Render(p.BuiltAt.Local().Format("2006-01-02 15:04")),
			ui.Muted.Render(fmt.Sprintf("%d vars", len(p.Variables))),
		)
	}
	return nil
}

func runCacheClean(_ *cobra.Command, args []string) error {
	cfg, err := loadShellConfig()
	if err != nil {
		return err
	}
	c, err := openCache(shellCacheDir, cfg)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		key := cache.Key{FlakeReference: args[0], Impure: cacheCleanImpure}
		if err := c.Remove(key); err != nil {
			return err
		}
		ui.Ok("Removed " + key.String())
		return nil
	}
	n, err := c.Clean()
	if err != nil {
		return err
	}
	ui.Ok(fmt.Sprintf("Removed %d cached profile(s)", n))
	return nil
}

func runShellHistory(_ *cobra.Command, _ []string) error {
	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer db.Close()

	builds, err := db.RecentBuilds(historyLimit)
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		ui.Inf("No builds recorded yet")
		return nil
	}
	for _, b := range builds {
		status := ui.Success.Render(ui.IconOk)
		if !b.Success {
			status = ui.Error.Render(ui.IconError)
		}
		key := cache.Key{FlakeReference: b.FlakeReference, Impure: b.Impure}
		line := fmt.Sprintf("%s%s  %s  %s", status,
			ui.Muted.Render(b.StartedAt.Local().Format("2006-01-02 15:04:05")),
			key,
			ui.Muted.Render(b.Duration.Round(time.Millisecond).String()))
		if b.Error != "" {
			line += "  " + ui.Error.Render(firstLine(b.Error))
		}
		fmt.Println(line)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
