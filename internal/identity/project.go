package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/boshu2/recall/internal/types"
)

// DetectProject walks up from dir looking for a repository root, normalizes
// its primary remote (if any) so SSH and HTTPS forms of the same remote
// collapse to one identity, and derives a project_id stable across clones
// on different machines when a remote exists (spec.md §4.1).
func DetectProject(dir string) (types.Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return types.Project{}, err
	}

	_, root, remote := findRepoRoot(abs)

	var displayName, identitySource string
	if remote != "" {
		displayName = remoteDisplayName(remote)
		identitySource = remote
	} else {
		rootPath := root
		if rootPath == "" {
			rootPath = abs
		}
		displayName = filepath.Base(rootPath)
		identitySource = rootPath
		root = rootPath
	}

	return types.Project{
		ProjectID:   deriveProjectID(displayName, identitySource),
		DisplayName: displayName,
		GitRemote:   remote,
		RootPath:    root,
		SharePolicy: "private",
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// findRepoRoot walks dir and its ancestors looking for a git repository,
// returning its working tree root and normalized primary remote URL (empty
// string for either if dir is not inside a repository, or the repository
// has no configured remote).
func findRepoRoot(dir string) (repo *git.Repository, root, remote string) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", ""
	}

	wt, err := repo.Worktree()
	if err == nil {
		root = wt.Filesystem.Root()
	}

	if r, err := repo.Remote("origin"); err == nil {
		if urls := r.Config().URLs; len(urls) > 0 {
			remote = normalizeRemote(urls[0])
		}
	}
	return repo, root, remote
}

var (
	sshRemoteRe   = regexp.MustCompile(`^(?:ssh://)?git@([^:/]+)[:/](.+?)(?:\.git)?/?$`)
	httpsRemoteRe = regexp.MustCompile(`^https?://(?:[^@/]+@)?([^/]+)/(.+?)(?:\.git)?/?$`)
)

// normalizeRemote collapses SSH and HTTPS forms of the same remote to
// "host/owner/name" (spec.md §4.1).
func normalizeRemote(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := sshRemoteRe.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + strings.TrimSuffix(m[2], ".git")
	}
	if m := httpsRemoteRe.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + strings.TrimSuffix(m[2], ".git")
	}
	return strings.TrimSuffix(raw, ".git")
}

func remoteDisplayName(normalized string) string {
	parts := strings.Split(normalized, "/")
	return parts[len(parts)-1]
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(s)
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// deriveProjectID implements spec.md §4.1's
// slug(display_name)[:20] + "-" + sha256(remote_or_root)[:16].
func deriveProjectID(displayName, identitySource string) string {
	s := slug(displayName)
	if len(s) > 20 {
		s = s[:20]
	}
	sum := sha256.Sum256([]byte(identitySource))
	return s + "-" + hex.EncodeToString(sum[:])[:16]
}
