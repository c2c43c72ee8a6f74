package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/settings"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Short:   "Show narration settings",
	Long:    paragraph(fmt.Sprintf("\n%s the backend, voice and speed used for narration. They are stored in the library and take effect on the next article.", keyword("Show"))),
	Example: paragraph("narrate settings\nnarrate settings set backend remote"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, st, err := openLibrary(appCfg, log.Default())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		cfg, err := st.Load(cmd.Context())
		if err != nil {
			return err
		}
		printSettings(cfg)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change a narration setting",
	Long:  paragraph(fmt.Sprintf("\n%s a narration setting. KEY is one of: %s.", keyword("Change"), strings.Join(settings.Keys(), ", "))),
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return settings.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, st, err := openLibrary(appCfg, log.Default())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		cfg, err := st.Set(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printSettings(cfg)
		return nil
	},
}

func printSettings(cfg settings.EngineConfig) {
	values := cfg.Values()
	w := 0
	for _, kv := range values {
		w = max(w, runewidth.StringWidth(kv[0]))
	}
	for _, kv := range values {
		v := kv[1]
		if v == "" {
			v = "(default)"
		}
		fmt.Printf("%s  %s\n", keyword(runewidth.FillRight(kv[0], w)), v)
	}
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
}
