// Package target materializes a scan.Request's target into a local
// filesystem path an adapter can operate on. It is grounded on the
// teacher's internal/git/clone.go Client.CloneRepository (go-git
// PlainCloneContext, branch/commit checkout, "already exists" update
// path), generalized from the teacher's own VCSFetchRequest shape to
// scan.Target and simplified to the auth methods the orchestrator's own
// config exposes (HTTP token or SSH agent, not the teacher's pluggable
// Authenticator interface, since this repository has one caller, not a
// family of VCS plugins each needing their own auth negotiation).
package target

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// AuthMethod names how Resolver authenticates outbound clone/fetch
// operations. Empty means anonymous.
type AuthMethod string

const (
	AuthNone     AuthMethod = ""
	AuthHTTPBasic AuthMethod = "http"
	AuthSSHAgent  AuthMethod = "ssh-agent"
)

// Resolver clones or refreshes GIT_REPO targets under a common root and
// leaves LOCAL_PATH targets untouched. It never runs an adapter itself.
type Resolver struct {
	Root   string
	Auth   AuthMethod
	Token  string // HTTP basic auth token, used when Auth == AuthHTTPBasic
	cfg    config.GitClient
	logger hclog.Logger
}

// New builds a Resolver rooted at cfg.Paths.ProjectsHome-style dir.
func New(root string, cfg config.GitClient, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Resolver{Root: root, cfg: cfg, logger: logger}
}

// Resolve returns a filesystem path suitable for an adapter's
// scan.Target.Path. LOCAL_PATH and CONTAINER_IMAGE/HTTP_URL targets are
// returned verbatim; GIT_REPO targets are cloned (or updated, if already
// present) into r.Root and checked out at the requested branch or commit.
func (r *Resolver) Resolve(ctx context.Context, t scan.Target) (string, error) {
	switch t.Kind {
	case capability.TargetLocalPath, capability.TargetContainerImage, capability.TargetHTTPURL:
		return t.Path, nil
	case capability.TargetGitRepo:
		return r.checkout(ctx, t)
	default:
		return "", &orcherrors.InvalidInput{Reason: fmt.Sprintf("unsupported target kind %q", t.Kind), FieldPath: "target.kind"}
	}
}

func (r *Resolver) checkout(ctx context.Context, t scan.Target) (string, error) {
	dest := filepath.Join(r.Root, repoDirName(t.Path))
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	auth, err := r.authMethod()
	if err != nil {
		return "", err
	}

	opts := &git.CloneOptions{
		URL:             t.Path,
		Auth:            auth,
		Depth:           r.depth(),
		InsecureSkipTLS: r.cfg.InsecureSkipTLS,
	}
	if t.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(t.Branch)
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		if err != git.ErrRepositoryAlreadyExists {
			return "", &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("clone %s: %v", t.Path, err)}
		}
		repo, err = git.PlainOpen(dest)
		if err != nil {
			return "", &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("open existing checkout %s: %v", dest, err)}
		}
		if err := fetchLatest(ctx, repo, auth); err != nil {
			r.logger.Warn("fetch failed, continuing with existing checkout", "target", t.Path, "error", err)
		}
	}

	w, err := repo.Worktree()
	if err != nil {
		return "", &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("worktree %s: %v", dest, err)}
	}

	checkoutOpts := &git.CheckoutOptions{Force: true}
	switch {
	case t.Commit != "":
		checkoutOpts.Hash = plumbing.NewHash(t.Commit)
	case t.Branch != "":
		checkoutOpts.Branch = plumbing.NewBranchReferenceName(t.Branch)
	}
	if checkoutOpts.Hash != plumbing.ZeroHash || checkoutOpts.Branch != "" {
		if err := w.Checkout(checkoutOpts); err != nil {
			return "", &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("checkout %s at %s/%s: %v", dest, t.Branch, t.Commit, err)}
		}
	}

	return dest, nil
}

func fetchLatest(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Auth: auth, Force: true})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return err
	}
	return nil
}

func (r *Resolver) authMethod() (transport.AuthMethod, error) {
	switch r.Auth {
	case AuthNone:
		return nil, nil
	case AuthHTTPBasic:
		return &http.BasicAuth{Username: "orchestrator", Password: r.Token}, nil
	case AuthSSHAgent:
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("ssh agent auth: %v", err)}
		}
		return auth, nil
	default:
		return nil, &orcherrors.InvalidInput{Reason: fmt.Sprintf("unsupported git auth method %q", r.Auth)}
	}
}

func (r *Resolver) depth() int {
	if r.cfg.Depth > 0 {
		return r.cfg.Depth
	}
	return 1
}

func (r *Resolver) timeout() time.Duration {
	if r.cfg.Timeout > 0 {
		return r.cfg.Timeout
	}
	return 5 * time.Minute
}

// repoDirName derives a filesystem-safe directory name from a clone URL so
// repeated resolves of the same target reuse one checkout.
func repoDirName(cloneURL string) string {
	sum := sha256.Sum256([]byte(cloneURL))
	return "repo-" + hex.EncodeToString(sum[:8])
}
