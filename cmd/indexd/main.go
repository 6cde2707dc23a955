package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/chainmirror/indexd/internal/chain"
	"github.com/chainmirror/indexd/internal/config"
	"github.com/chainmirror/indexd/internal/indexer"
	"github.com/chainmirror/indexd/internal/logging"
	"github.com/chainmirror/indexd/internal/server"
	"github.com/chainmirror/indexd/internal/storage"
)

var (
	displayVersion bool
	Version        = "0.0.0"
)

func init() {
	flag.StringVar(
		&config.BaseDirectory,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory for indexd. Default directory is ~/.indexd",
	)
	flag.BoolVar(
		&displayVersion,
		"version",
		false,
		"show version of indexd",
	)
	flag.Parse()

	if displayVersion {
		return
	}

	config.SetDirectories()

	err := os.MkdirAll(config.BaseDirectory, 0750)
	if err != nil && !errors.Is(err, os.ErrExist) {
		logging.L.Fatal().Err(err).Msg("error creating base directory")
	}

	logging.L.Info().Msgf("base directory %s", config.BaseDirectory)

	// load after loggers are instantiated
	config.LoadConfigs(path.Join(config.BaseDirectory, config.ConfigFileName))

	err = os.MkdirAll(config.DBPath, 0750)
	if err != nil && !errors.Is(err, os.ErrExist) {
		logging.L.Fatal().Err(err).Msg("error creating db path")
	}

	if config.LogsPath != "" {
		if err := logging.SetLogOutput(config.LogsPath, "indexd.log", config.LogToConsole); err != nil {
			logging.L.Warn().Err(err).Msg("Failed to initialize file logging")
		}
	}
}

func main() {
	if displayVersion {
		fmt.Println("indexd version:", Version) // using fmt because loggers are not initialised
		os.Exit(0)
	}
	defer logging.Close()
	defer logging.L.Info().Msg("Program shut down")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	logging.L.Info().Msg("Program Started")

	store, err := storage.Open(config.DBPath, config.StartHeight)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("failed opening db")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.L.Err(err).Msg("db close failed")
		}
	}()

	source := chain.NewClient(config.RpcEndpoint, config.RpcUser, config.RpcPass)
	engine := indexer.NewEngine(source, store, config.ChainParams, config.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// fail fast on unreachable node or wrong network
	if err := engine.Init(ctx); err != nil {
		logging.L.Fatal().Err(err).Msg("engine init failed")
	}

	// status endpoints for the supervisor; read-only
	go server.RunServer(&server.ApiHandler{Store: store, Params: config.ChainParams})

	errChan := make(chan error)
	go func() {
		errChan <- engine.Run(ctx)
	}()

	select {
	case <-interrupt:
		cancel()
		logging.L.Info().Msg("Program interrupted")
	case err := <-errChan:
		cancel()
		logging.L.Err(err).Msg("program failed")
	}
}
