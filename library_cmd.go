package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/library"
	"github.com/dgnsrekt/narrate/ui"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add FILE|DIR...",
	Short:   "Add articles to the library",
	Long:    paragraph(fmt.Sprintf("\n%s Markdown and HTML articles to the library. Directories are searched recursively, honoring .gitignore.", keyword("Add"))),
	Example: paragraph("narrate add ~/feeds\nnarrate add post.md page.html"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openLibrary(appCfg, log.Default())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		docs, err := library.LoadAll(args...)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := db.Upsert(cmd.Context(), d.Record()); err != nil {
				return err
			}
		}
		fmt.Printf("Added %s to the library.\n", plural(len(docs), "article"))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List unlistened articles",
	Long:  paragraph(fmt.Sprintf("\n%s the library articles you have not listened to yet, most interesting sources first.", keyword("List"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, _, err := openLibrary(appCfg, log.Default())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		rows, err := db.Unlistened(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("Nothing left to listen to.")
			return nil
		}

		titleWidth := 0
		for _, r := range rows {
			titleWidth = max(titleWidth, runewidth.StringWidth(r.Title))
		}
		titleWidth = min(titleWidth, 60)
		for _, r := range rows {
			title := runewidth.FillRight(runewidth.Truncate(r.Title, titleWidth, "…"), titleWidth)
			fmt.Printf("%s  %-16s %s\n", title, runewidth.Truncate(r.Source, 16, "…"), humanize.Time(r.CreatedAt))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch DIR",
	Short:   "Narrate articles as they appear in a directory",
	Long:    paragraph(fmt.Sprintf("\n%s DIR and narrate every new Markdown or HTML file saved there, until interrupted.", keyword("Watch"))),
	Example: paragraph("narrate watch ~/feeds/inbox"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("%s is not a directory", args[0])
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(appCfg, dryRun)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		h := ui.NewHeadless(os.Stdout, int(width)) //nolint:gosec
		h.Follow = true

		watchErr := make(chan error, 1)
		start := func() {
			go func() {
				watchErr <- library.Watch(ctx, dir, library.DefaultSettle, a.logger, func(d library.Document) {
					if err := a.db.Upsert(ctx, d.Record()); err != nil {
						a.logger.Warn("unable to record article", "file", d.Path, "err", err)
					}
					a.engine.Enqueue(d.Entry())
				})
			}()
		}

		fmt.Printf("Watching %s. Press Ctrl+C to stop.\n", dir)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := <-watchErr; err != nil {
				log.Error("watch stopped", "err", err)
				fmt.Fprintln(os.Stderr, err)
			}
			cancel()
		}()
		return h.Run(runCtx, a.engine, a.engine.Signals(), start)
	},
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
