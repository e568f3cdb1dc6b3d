package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appgit.toml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Git.DefaultBranch)
	assert.Equal(t, "origin", cfg.Git.RemoteName)
	assert.Equal(t, 60*time.Second, cfg.RemoteTimeout())
	assert.Equal(t, 3, cfg.Git.FetchRetries)

	_, err = os.Stat(path)
	assert.NoError(t, err, "defaults should be saved on first load")
}

func TestLoadFromOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appgit.toml")
	data := `
[storage]
working_dir = "/srv/appgit/repos"

[git]
default_branch = "master"
remote_timeout = "5s"
log_page_size = 20

[credentials.deploy]
ssh_key_path = "/keys/deploy"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/appgit/repos", cfg.WorkingDir())
	assert.Equal(t, "master", cfg.Git.DefaultBranch)
	assert.Equal(t, "origin", cfg.Git.RemoteName, "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout())
	assert.Equal(t, 20, cfg.Git.LogPageSize)
	assert.Equal(t, "/keys/deploy", cfg.Credentials["deploy"].SSHKeyPath)
}

func TestLoadFromRejectsBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appgit.toml")
	require.NoError(t, os.WriteFile(path, []byte("[git]\nremote_timeout = \"soon\"\n"), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), expandTilde("~/x"))
	assert.Equal(t, "/abs", expandTilde("/abs"))
}
