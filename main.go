// Package main provides the entry point for the narrate CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/dgnsrekt/narrate/internal/library"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	headless   bool
	dryRun     bool
	debug      bool
	width      uint

	paths  config.Paths
	appCfg config.Config

	rootCmd = &cobra.Command{
		Use:   "narrate [FILE|DIR...]",
		Short: "Read your articles aloud, on the CLI",
		Long: paragraph(
			fmt.Sprintf("\nQueue Markdown and HTML articles and %s, on-device or through a speech API. With no arguments, narrate plays the unlistened articles in your library.", keyword("listen to them")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if _, err := config.Read(viper.GetViper()); err != nil {
			return err
		}
	}

	// grab config values from Viper
	headless = viper.GetBool("headless")
	dryRun = viper.GetBool("dry_run")
	debug = viper.GetBool("debug")
	width = viper.GetUint("width")

	c, err := config.Load(viper.GetViper(), paths)
	if err != nil {
		return err
	}
	appCfg = c
	applyLogLevel(appCfg.LogLevel, debug)

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal {
		headless = true
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") && width == 0 && isTerminal {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = uint(w) //nolint:gosec
		}
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(appCfg, dryRun)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown", "err", err)
		}
	}()

	entries, err := collectEntries(ctx, a, args)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Nothing to narrate.")
		return nil
	}

	start := func() { a.engine.EnqueueAll(entries) }
	if headless {
		return ui.NewHeadless(os.Stdout, int(width)).Run(ctx, a.engine, a.engine.Signals(), start) //nolint:gosec
	}
	return runTUI(ctx, a, start)
}

// collectEntries loads the articles named on the command line and records
// them in the library, or returns the library's unlistened articles when
// there are no arguments.
func collectEntries(ctx context.Context, a *app, args []string) ([]narration.Entry, error) {
	if len(args) > 0 {
		docs, err := library.LoadAll(args...)
		if err != nil {
			return nil, err
		}
		entries := make([]narration.Entry, 0, len(docs))
		for _, d := range docs {
			if err := a.db.Upsert(ctx, d.Record()); err != nil {
				return nil, err
			}
			entries = append(entries, d.Entry())
		}
		return entries, nil
	}

	rows, err := a.db.Unlistened(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]narration.Entry, 0, len(rows))
	for _, r := range rows {
		d, err := library.Load(r.Path)
		if err != nil {
			log.Warn("skipping library entry", "id", r.ID, "err", err)
			continue
		}
		entries = append(entries, narration.Entry{
			ID:      r.ID,
			Title:   r.Title,
			Source:  r.Source,
			Summary: r.Summary,
			Content: d.Content,
		})
	}
	return entries, nil
}

// signalContext is cancelled on Ctrl+C.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}

func runTUI(ctx context.Context, a *app, start func()) error {
	// Read environment to get TUI settings
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if width > 0 && (cfg.GlamourMaxWidth == 0 || width < cfg.GlamourMaxWidth) {
		cfg.GlamourMaxWidth = width
	}

	p := ui.NewProgram(cfg, a.engine, start)
	detach, err := ui.Attach(p, a.engine, a.engine.Signals())
	if err != nil {
		return err
	}
	defer detach()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warn("Could not load .env", "err", err)
	}
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().BoolVarP(&headless, "headless", "H", false, "print status lines instead of the TUI")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "narrate without producing sound")
	rootCmd.PersistentFlags().UintVarP(&width, "width", "w", 0, "truncate status output at width (0 for terminal width)")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("headless", rootCmd.PersistentFlags().Lookup("headless"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("width", rootCmd.PersistentFlags().Lookup("width"))

	rootCmd.AddCommand(configCmd, manCmd, addCmd, listCmd, watchCmd, settingsCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	var err error
	paths, err = config.UserPaths()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}
	config.Setup(viper.GetViper(), paths)

	used, err := config.Read(viper.GetViper())
	if err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
	if used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = paths.DefaultFile()
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
