package main

import (
	"github.com/mcdev12/quizduel/go/internal/config"
)

// ServerConfig is the process-level configuration read from the environment.
type ServerConfig struct {
	Port           string
	StoreBackend   string
	ConfigPath     string
	MigrationsPath string
	PublicURL      string
	LogLevel       string
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:           config.GetEnv("PORT", "8080"),
		StoreBackend:   config.GetEnv("STORE_BACKEND", config.BackendMemory),
		ConfigPath:     config.GetEnv("CONFIG_PATH", "config.yaml"),
		MigrationsPath: config.GetEnv("MIGRATIONS_PATH", "go/db/migrations"),
		PublicURL:      config.GetEnv("PUBLIC_URL", "http://localhost:8080"),
		LogLevel:       config.GetEnv("LOG_LEVEL", "info"),
	}
}
