package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	ConfigFileName       string = "indexd.toml"
	DefaultBaseDirectory string = "~/.indexd"
)

var (
	RpcEndpoint = "http://127.0.0.1:8332" // default local node
	CookiePath  = ""
	RpcUser     = ""
	RpcPass     = ""

	BaseDirectory = ""
	DBPath        = ""
	LogsPath      = ""

	HTTPHost = "127.0.0.1:8000"
)

var (
	// StartHeight is the lowest height the mirror will ever index. Blocks
	// below it are never pulled; the empty-store tip is StartHeight-1.
	StartHeight int64

	// PollInterval is the steady-state tip re-check interval.
	PollInterval = 10 * time.Second

	LogLevel     = "info"
	LogToConsole = true

	ChainParams = &chaincfg.MainNetParams
)

func SetDirectories() {
	if strings.HasPrefix(BaseDirectory, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			BaseDirectory = filepath.Join(home, strings.TrimPrefix(BaseDirectory, "~"))
		}
	}
	DBPath = filepath.Join(BaseDirectory, "data")
}
