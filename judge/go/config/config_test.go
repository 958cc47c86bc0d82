package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

// unsetenv removes name for the duration of the test.
func unsetenv(t *testing.T, name string) {
	t.Setenv(name, "")
	require.NoError(t, os.Unsetenv(name))
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	unittest.SmallTest(t)
	t.Setenv("DATABASE_URI", "postgresql://judge@localhost/judge")
	t.Setenv("TEST_DATABASE_URI", "postgresql://judge@localhost/judge_test")
	t.Setenv("REDIS_URI", "redis://localhost:6379/0")
	t.Setenv("SECRET_KEY", "hunter2")
	t.Setenv("ENABLE_SOCKETIO", "0")
	t.Setenv("JUDGE_URL", "https://judge.easyctf.com")
	t.Setenv("DIGITALOCEAN_API_TOKEN", "do-token")

	c, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "postgresql://judge@localhost/judge", c.DatabaseURI)
	require.Equal(t, "postgresql://judge@localhost/judge_test", c.TestDatabaseURI)
	require.Equal(t, "redis://localhost:6379/0", c.RedisURI)
	require.Equal(t, []byte("hunter2"), c.SecretKey)
	require.False(t, c.EnableSocketIO)
	require.Equal(t, "https://judge.easyctf.com", c.JudgeURL)
	require.Equal(t, "do-token", c.DigitalOceanAPIToken)
}

func TestLoad_SocketIODefaultsOn(t *testing.T) {
	unittest.SmallTest(t)
	unsetenv(t, "ENABLE_SOCKETIO")
	t.Setenv("SECRET_KEY", "k")

	c, err := Load(t.TempDir())
	require.NoError(t, err)
	require.True(t, c.EnableSocketIO)

	t.Setenv("ENABLE_SOCKETIO", "1")
	c, err = Load(t.TempDir())
	require.NoError(t, err)
	require.True(t, c.EnableSocketIO)
}

func TestLoad_SocketIOInvalid(t *testing.T) {
	unittest.SmallTest(t)
	t.Setenv("ENABLE_SOCKETIO", "yes")
	t.Setenv("SECRET_KEY", "k")

	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_GeneratesSecretKeyOnce(t *testing.T) {
	unittest.SmallTest(t)
	unsetenv(t, "SECRET_KEY")
	root := t.TempDir()

	c, err := Load(root)
	require.NoError(t, err)
	require.Len(t, c.SecretKey, secretKeyLength)

	path := filepath.Join(root, secretKeyFile)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A second load reuses the stored key.
	again, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, c.SecretKey, again.SecretKey)
}

func TestLoad_ReadsExistingSecretKeyFile(t *testing.T) {
	unittest.SmallTest(t)
	unsetenv(t, "SECRET_KEY")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, secretKeyFile), []byte("stored"), 0600))

	c, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, []byte("stored"), c.SecretKey)
}
