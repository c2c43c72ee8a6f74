package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show the synthesized audio cache",
	Long:  paragraph(fmt.Sprintf("\n%s how much synthesized audio is kept on disk, and where.", keyword("Show"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		s, err := cache.Open(appCfg.Cache, log.Default())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		disk := s.LevelStats(cache.LevelDisk)
		fmt.Printf("%s %s\n", keyword("Directory:"), appCfg.Cache.DiskPath)
		fmt.Printf("%s %s of %s in %s\n",
			keyword("Disk:     "),
			humanize.Bytes(uint64(disk.Size)),     //nolint:gosec
			humanize.Bytes(uint64(disk.Capacity)), //nolint:gosec
			plural(int(disk.ItemCount), "clip"),
		)
		if !disk.LastAccess.IsZero() {
			fmt.Printf("%s %s\n", keyword("Last used:"), humanize.Time(disk.LastAccess))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached audio",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		s, err := cache.Open(appCfg.Cache, log.Default())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		n := s.LevelStats(cache.LevelDisk).ItemCount
		if err := s.Clear(); err != nil {
			return err
		}
		fmt.Printf("Removed %s.\n", plural(int(n), "clip"))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached audio older than cache.max_age",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg := appCfg.Cache
		cfg.MaxAge = 0
		s, err := cache.Open(cfg, log.Default())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		fmt.Printf("Removed %s.\n", plural(s.Prune(appCfg.Cache.MaxAge), "clip"))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
}
