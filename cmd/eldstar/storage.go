package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/eldstar/server/internal/config"
	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/internal/storage/memory"
	pgstorage "github.com/eldstar/server/internal/storage/postgres"
	sqlitestorage "github.com/eldstar/server/internal/storage/sqlite"
	wsstorage "github.com/eldstar/server/internal/storage/websocket"
)

// openStorage creates and initialises the configured backend. A nil
// backend means frames are not recorded.
func (a *app) openStorage(storageCfg config.StorageConfig) (storage.Backend, error) {
	backend, err := a.createStorageBackend(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if backend == nil {
		a.logger.Info("Recording disabled")
		return nil, nil
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage backend: %w", storageCfg.Type, err)
	}
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

func (a *app) createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	dbLog := a.zlog.With().Str("component", "storage").Logger()

	switch strings.ToLower(storageCfg.Type) {
	case "", "none":
		return nil, nil

	case "memory":
		return memory.New(storageCfg.Memory), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.Path
		if dumpPath == "" {
			dumpPath = filepath.Join(storageCfg.Memory.OutputDir,
				fmt.Sprintf("eldstar_%s.db", a.start.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
			Version:      Version,
		}, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		a.logger.Info("Using in-memory SQLite with periodic disk dump", "path", dumpPath)
		return backend, nil

	case "postgres":
		return pgstorage.New(pgstorage.Dependencies{
			Config:  config.GetDatabaseConfig(),
			Log:     dbLog,
			Version: Version,
		}), nil

	case "websocket":
		apiCfg := config.GetAPIConfig()
		wsURL := httpToWS(apiCfg.ServerURL) + "/api"
		a.logger.Info("WebSocket storage backend", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			APIKey: apiCfg.APIKey,
		}, a.logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
