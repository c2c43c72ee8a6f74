package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the narrate config file",
	Long:    paragraph(fmt.Sprintf("\n%s the narrate config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("narrate config\nnarrate config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Narrate", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		configFile = paths.DefaultFile()
	}

	created, err := config.EnsureFile(configFile)
	if err != nil {
		return err
	}
	if created {
		log.Debug("wrote default configuration", "path", configFile)
	}
	return nil
}
