// Package credentials turns the opaque GitAuthRef stored on application
// metadata into a go-git auth method. Secrets are read from files and
// environment variables at call time and never cached.
package credentials

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	xssh "golang.org/x/crypto/ssh"

	"github.com/wahlandcase/appgit/internal/config"
	"github.com/wahlandcase/appgit/internal/errs"
)

// Resolver resolves a credential reference; nil auth means anonymous
type Resolver interface {
	Resolve(ref string) (transport.AuthMethod, error)
}

// Provider resolves references against the [credentials.<ref>] config sections
type Provider struct {
	refs   map[string]config.CredentialConfig
	getenv func(string) string
}

func NewProvider(refs map[string]config.CredentialConfig) *Provider {
	return &Provider{refs: refs, getenv: os.Getenv}
}

// Has returns true if ref is configured
func (p *Provider) Has(ref string) bool {
	_, ok := p.refs[ref]
	return ok
}

func (p *Provider) Resolve(ref string) (transport.AuthMethod, error) {
	if ref == "" {
		return nil, nil
	}
	c, ok := p.refs[ref]
	if !ok {
		return nil, errs.Invalid("git auth", fmt.Sprintf("unknown credential reference %q", ref))
	}

	switch {
	case c.SSHKeyPath != "":
		user := c.SSHUser
		if user == "" {
			user = gitssh.DefaultUsername
		}
		var passphrase string
		if c.PassphraseEnv != "" {
			passphrase = p.getenv(c.PassphraseEnv)
		}
		keys, err := gitssh.NewPublicKeysFromFile(user, c.SSHKeyPath, passphrase)
		if err != nil {
			return nil, fmt.Errorf("load ssh key for %s: %w", ref, err)
		}
		switch {
		case c.InsecureIgnoreHostKey:
			keys.HostKeyCallback = xssh.InsecureIgnoreHostKey()
		case c.KnownHosts != "":
			cb, err := gitssh.NewKnownHostsCallback(c.KnownHosts)
			if err != nil {
				return nil, fmt.Errorf("load known hosts for %s: %w", ref, err)
			}
			keys.HostKeyCallback = cb
		}
		return keys, nil

	case c.TokenEnv != "":
		token := p.getenv(c.TokenEnv)
		if token == "" {
			return nil, errs.Invalid("git auth", fmt.Sprintf("environment variable %s is empty", c.TokenEnv))
		}
		user := c.Username
		if user == "" {
			// Token-only hosts accept any non-empty user name
			user = "git"
		}
		return &http.BasicAuth{Username: user, Password: token}, nil
	}

	return nil, errs.Invalid("git auth", fmt.Sprintf("credential reference %q has neither ssh_key_path nor token_env", ref))
}
