package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chainmirror/indexd/internal/config"
	"github.com/chainmirror/indexd/internal/logging"
	"github.com/chainmirror/indexd/internal/storage"
)

var (
	Version = "0.0.0"

	// Global flags
	datadir     string
	startHeight int64
)

func openStore() (*storage.Store, error) {
	config.BaseDirectory = datadir
	config.SetDirectories()
	return storage.Open(config.DBPath, startHeight)
}

var rootCmd = &cobra.Command{
	Use:     "dbtool",
	Short:   "Inspect the indexd mirror database",
	Version: Version,
}

var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Print the best indexed tip",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tip, err := store.BestTip(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("height: %d\nblockid: %s\n", tip.Height, tip.Hash)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print per-table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		counts, err := store.RowCounts(context.Background())
		if err != nil {
			return err
		}
		for _, table := range []string{
			"blocks", "transactions", "transactions_mempool", "history", "history_mempool",
		} {
			fmt.Printf("%-22s %d\n", table, counts[table])
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Print the confirmed ownership rows for an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.AddressHistory(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			height := int64(-1)
			if e.Height != nil {
				height = *e.Height
			}
			fmt.Printf("%s:%d value=%d height=%d\n", e.Txid, e.Index, e.Value, height)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&datadir,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory for indexd. Default directory is ~/.indexd",
	)
	rootCmd.PersistentFlags().Int64Var(
		&startHeight,
		"start-height",
		0,
		"Lowest height the mirror indexes; only affects the empty-store tip",
	)

	rootCmd.AddCommand(tipCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.L.Err(err).Msg(filepath.Base(os.Args[0]) + " failed")
		os.Exit(1)
	}
}
