package config

import (
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/chainmirror/indexd/internal/logging"
)

func LoadConfigs(pathToConfig string) {
	viper.SetConfigFile(pathToConfig)

	if err := viper.ReadInConfig(); err != nil {
		logging.L.Warn().Err(err).Msg("No config file detected")
	}

	/* set defaults */
	viper.SetDefault("chain", "main")
	viper.SetDefault("rpc_endpoint", RpcEndpoint)
	viper.SetDefault("http_host", HTTPHost)
	viper.SetDefault("start_height", 0)
	viper.SetDefault("poll_interval", 10)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_path", "")
	viper.SetDefault("log_to_console", true)

	viper.AutomaticEnv()
	viper.BindEnv("chain", "CHAIN")
	viper.BindEnv("rpc_endpoint", "RPC_ENDPOINT")
	viper.BindEnv("rpc_user", "RPC_USER")
	viper.BindEnv("rpc_pass", "RPC_PASS")
	viper.BindEnv("cookie_path", "COOKIE_PATH")
	viper.BindEnv("http_host", "HTTP_HOST")
	viper.BindEnv("start_height", "START_HEIGHT")
	viper.BindEnv("poll_interval", "POLL_INTERVAL")
	viper.BindEnv("log_level", "LOG_LEVEL")

	/* read and set config variables */
	RpcEndpoint = viper.GetString("rpc_endpoint")
	CookiePath = viper.GetString("cookie_path")
	RpcUser = viper.GetString("rpc_user")
	RpcPass = viper.GetString("rpc_pass")
	HTTPHost = viper.GetString("http_host")
	StartHeight = viper.GetInt64("start_height")
	PollInterval = time.Duration(viper.GetInt64("poll_interval")) * time.Second
	LogLevel = viper.GetString("log_level")
	LogsPath = viper.GetString("log_path")
	LogToConsole = viper.GetBool("log_to_console")

	switch viper.GetString("chain") {
	case "main":
		ChainParams = &chaincfg.MainNetParams
	case "testnet":
		ChainParams = &chaincfg.TestNet3Params
	case "signet":
		ChainParams = &chaincfg.SigNetParams
	case "regtest":
		ChainParams = &chaincfg.RegressionNetParams
	default:
		logging.L.Fatal().Str("chain", viper.GetString("chain")).Msg("chain undefined")
		return
	}

	switch LogLevel {
	case "trace":
		logging.SetLogLevel(zerolog.TraceLevel)
	case "debug":
		logging.SetLogLevel(zerolog.DebugLevel)
	case "info":
		logging.SetLogLevel(zerolog.InfoLevel)
	case "warn":
		logging.SetLogLevel(zerolog.WarnLevel)
	case "error":
		logging.SetLogLevel(zerolog.ErrorLevel)
	}

	if CookiePath != "" {
		data, err := os.ReadFile(CookiePath)
		if err != nil {
			logging.L.Fatal().Err(err).Msg("error reading cookie file")
		}

		credentials := strings.Split(strings.TrimSpace(string(data)), ":")
		if len(credentials) != 2 {
			logging.L.Fatal().Msg("cookie file is invalid")
		}
		RpcUser = credentials[0]
		RpcPass = credentials[1]
	}

	if RpcUser == "" {
		logging.L.Fatal().Msg("rpc user not set")
	}
	if RpcPass == "" {
		logging.L.Fatal().Msg("rpc pass not set")
	}
}
