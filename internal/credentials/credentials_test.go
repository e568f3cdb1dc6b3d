package credentials

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xssh "golang.org/x/crypto/ssh"

	"github.com/wahlandcase/appgit/internal/config"
	"github.com/wahlandcase/appgit/internal/errs"
)

func writeKey(t *testing.T) string {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := xssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestResolveEmptyRefIsAnonymous(t *testing.T) {
	p := NewProvider(nil)
	auth, err := p.Resolve("")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestResolveUnknownRef(t *testing.T) {
	p := NewProvider(map[string]config.CredentialConfig{})
	_, err := p.Resolve("deploy")
	assert.True(t, errs.IsValidation(err))
}

func TestResolveSSHKey(t *testing.T) {
	p := NewProvider(map[string]config.CredentialConfig{
		"deploy": {SSHKeyPath: writeKey(t), InsecureIgnoreHostKey: true},
	})

	auth, err := p.Resolve("deploy")
	require.NoError(t, err)
	keys, ok := auth.(*gitssh.PublicKeys)
	require.True(t, ok, "got %T", auth)
	assert.Equal(t, "git", keys.User)
	assert.NotNil(t, keys.HostKeyCallback)
}

func TestResolveToken(t *testing.T) {
	p := NewProvider(map[string]config.CredentialConfig{
		"ci": {Username: "bot", TokenEnv: "APPGIT_TEST_TOKEN"},
	})
	p.getenv = func(key string) string {
		if key == "APPGIT_TEST_TOKEN" {
			return "tkn"
		}
		return ""
	}

	auth, err := p.Resolve("ci")
	require.NoError(t, err)
	assert.Equal(t, &http.BasicAuth{Username: "bot", Password: "tkn"}, auth)

	p.getenv = func(string) string { return "" }
	_, err = p.Resolve("ci")
	assert.True(t, errs.IsValidation(err), "an unset token is a caller error")
}

func TestResolveIncompleteRef(t *testing.T) {
	p := NewProvider(map[string]config.CredentialConfig{"empty": {}})
	_, err := p.Resolve("empty")
	assert.True(t, errs.IsValidation(err))
	assert.True(t, p.Has("empty"))
}
