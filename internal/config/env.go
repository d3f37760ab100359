package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by the serve command.
const (
	EnvAddr    = "ROLLCALL_ADDR"
	EnvDB      = "ROLLCALL_DB"
	EnvSelf    = "ROLLCALL_SELF"
	EnvNATSURL = "ROLLCALL_NATS_URL"
)

// Process holds process-level configuration for a running server.
type Process struct {
	Addr    string
	DB      string
	Self    string
	NATSURL string
}

// LoadEnvFile loads variables from path into the environment without
// overriding variables already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ProcessFromEnv reads process configuration from the environment.
func ProcessFromEnv() Process {
	return Process{
		Addr:    getEnv(EnvAddr, ":8080"),
		DB:      getEnv(EnvDB, "rollcall.db"),
		Self:    getEnv(EnvSelf, ""),
		NATSURL: getEnv(EnvNATSURL, ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
