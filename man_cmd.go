package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("unable to build man page: %w", err)
		}
		page = page.WithSection("Files", "Configuration is read from narrate.yml in the user config directory.\n"+
			"The library database and the audio cache live in the user data and cache directories.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
