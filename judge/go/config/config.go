// Package config loads the judge's environment configuration.
package config

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/easyctf/openctf-judge/go/skerr"
)

const (
	secretKeyFile   = ".secret_key"
	secretKeyLength = 128
)

// Config carries every environment-driven setting. Listen addresses are
// flags on the binaries, not part of this struct.
type Config struct {
	// DatabaseURI is the Postgres connection string. Empty selects nothing;
	// binaries decide whether to fall back to the memory store.
	DatabaseURI string

	// TestDatabaseURI is the Postgres connection string used by the
	// database-gated test suites.
	TestDatabaseURI string

	// RedisURI enables the cross-replica event backplane when non-empty.
	RedisURI string

	// SecretKey is session-signing material for frontends sharing the
	// deployment. The judge itself never derives tokens from it.
	SecretKey []byte

	// EnableSocketIO turns the live event fan-out on or off.
	EnableSocketIO bool

	// JudgeURL is the coordinator address handed to new juries.
	JudgeURL string

	// DigitalOceanAPIToken authenticates the autoscaler's cloud calls.
	DigitalOceanAPIToken string
}

// Load reads the environment. appRoot is the directory holding the secret
// key file; empty means the current working directory.
func Load(appRoot string) (*Config, error) {
	c := &Config{
		DatabaseURI:          os.Getenv("DATABASE_URI"),
		TestDatabaseURI:      os.Getenv("TEST_DATABASE_URI"),
		RedisURI:             os.Getenv("REDIS_URI"),
		JudgeURL:             os.Getenv("JUDGE_URL"),
		DigitalOceanAPIToken: os.Getenv("DIGITALOCEAN_API_TOKEN"),
		EnableSocketIO:       true,
	}
	if v, ok := os.LookupEnv("ENABLE_SOCKETIO"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, skerr.Wrapf(err, "invalid ENABLE_SOCKETIO value %q", v)
		}
		c.EnableSocketIO = n != 0
	}
	key, err := loadSecretKey(appRoot)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	c.SecretKey = key
	return c, nil
}

// loadSecretKey prefers the SECRET_KEY variable, then the key file, and
// finally generates a fresh key and persists it for the next start.
func loadSecretKey(appRoot string) ([]byte, error) {
	if v, ok := os.LookupEnv("SECRET_KEY"); ok {
		return []byte(v), nil
	}
	path := filepath.Join(appRoot, secretKeyFile)
	contents, err := os.ReadFile(path)
	if err == nil && len(contents) > 0 {
		return contents, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, skerr.Wrapf(err, "reading %s", path)
	}
	key := make([]byte, secretKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, skerr.Wrapf(err, "writing %s", path)
	}
	return key, nil
}
