// Package provision fetches the credential and command bundles from the
// remote repository before the connection starts. Each fetch clones the
// repository into an ephemeral workspace that is removed unconditionally,
// success or failure.
package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"wabot/pkg/commands"
	"wabot/pkg/errors"
	"wabot/pkg/logger"
)

// cloneFunc clones the bundle repository into dir. Swappable for tests.
type cloneFunc func(ctx context.Context, url, token, dir string) error

// Provisioner fetches bundles from one repository.
type Provisioner struct {
	repoURL string
	token   string
	clone   cloneFunc
	log     *logger.Logger
}

// New creates a provisioner for the given repository.
func New(repoURL, token string) *Provisioner {
	return &Provisioner{
		repoURL: repoURL,
		token:   token,
		clone:   gitClone,
		log:     logger.Get().Component("provision"),
	}
}

// Credentials locates sessions/<sessionID> in the repository and copies its
// files into destDir, which is recreated from scratch. A missing session
// folder is fatal to startup.
func (p *Provisioner) Credentials(ctx context.Context, sessionID, destDir string) error {
	workspace, err := os.MkdirTemp("", "wabot-session-*")
	if err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	p.log.InfoWith("fetching credential bundle", "session", sessionID)
	if err := p.clone(ctx, p.repoURL, p.token, workspace); err != nil {
		return fmt.Errorf("cloning bundle repository: %w", err)
	}

	sessionDir := filepath.Join(workspace, "sessions", sessionID)
	if _, err := os.Stat(sessionDir); err != nil {
		return fmt.Errorf("%w: sessions/%s", errors.ErrSessionNotFound, sessionID)
	}

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clearing auth dir: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating auth dir: %w", err)
	}

	copied, err := copyFiles(sessionDir, destDir)
	if err != nil {
		return fmt.Errorf("copying session files: %w", err)
	}

	p.log.InfoWith("credential bundle ready", "session", sessionID, "files", copied)
	return nil
}

// Commands fetches the command bundle and builds the command table. Any
// failure yields an empty table rather than aborting startup: a degraded
// bot beats a crashed one.
func (p *Provisioner) Commands(ctx context.Context, defaultOwner string) *commands.Table {
	workspace, err := os.MkdirTemp("", "wabot-commands-*")
	if err != nil {
		p.log.ErrorWithErr("creating workspace failed, running without commands", err)
		return commands.NewTable()
	}
	defer os.RemoveAll(workspace)

	p.log.InfoWith("fetching command bundle")
	if err := p.clone(ctx, p.repoURL, p.token, workspace); err != nil {
		p.log.ErrorWithErr("cloning bundle repository failed, running without commands", err)
		return commands.NewTable()
	}

	table, err := commands.LoadDir(filepath.Join(workspace, "commands"), defaultOwner)
	if err != nil {
		p.log.ErrorWithErr("loading command bundle failed, running without commands", err)
		return commands.NewTable()
	}

	p.log.InfoWith("command table ready", "commands", table.Len())
	return table
}

// gitClone performs a shallow clone of the bundle repository.
func gitClone(ctx context.Context, url, token, dir string) error {
	opts := &gogit.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if token != "" {
		opts.Auth = &githttp.BasicAuth{
			Username: "token",
			Password: token,
		}
	}
	_, err := gogit.PlainCloneContext(ctx, dir, false, opts)
	return err
}

// copyFiles copies the regular files of src into dest, non-recursively.
func copyFiles(src, dest string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
