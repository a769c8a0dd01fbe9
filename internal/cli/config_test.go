package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("ARENA_SERVER", "http://arena:9000")
	t.Setenv("ARENA_OUTPUT", "json")
	t.Setenv("ARENA_TOKEN_FILE", "/tmp/arena-token")

	cfg := DefaultConfig()
	assert.Equal(t, "http://arena:9000", cfg.ServerURL)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "/tmp/arena-token", cfg.TokenFile)
}

func TestTokenRoundTripThroughFile(t *testing.T) {
	cfg := &Config{TokenFile: filepath.Join(t.TempDir(), "nested", "token")}

	require.NoError(t, cfg.LoadToken())
	assert.Empty(t, cfg.Token, "a missing token file is not an error")

	require.NoError(t, cfg.SaveToken("abc.def.ghi"))

	loaded := &Config{TokenFile: cfg.TokenFile}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "abc.def.ghi", loaded.Token)

	// An explicit token wins over the file
	explicit := &Config{TokenFile: cfg.TokenFile, Token: "flag"}
	require.NoError(t, explicit.LoadToken())
	assert.Equal(t, "flag", explicit.Token)
}
