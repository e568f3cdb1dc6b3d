package repository

import (
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
)

var fileTransportOnce sync.Once

// UseInProcessFileTransport serves file:// remotes from inside the process
// instead of spawning git-upload-pack/git-receive-pack. Remotes must be bare
// repositories.
func UseInProcessFileTransport() {
	fileTransportOnce.Do(func() {
		client.InstallProtocol("file", server.NewClient(server.DefaultLoader))
	})
}
