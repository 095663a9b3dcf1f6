// Package gitlog implements spec.md §4.4.4: an adapter over a local git
// repository's commit history and HEAD reflog.
package gitlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

// AuthorScope selects whose commits commits_since surfaces.
type AuthorScope string

const (
	AuthorScopeSelf AuthorScope = "self"
	AuthorScopeAll  AuthorScope = "all"
)

// defaultLookback is how far back the first ingest of a repository reaches
// (spec.md §4.4.4 "Cursor initializes to now minus 30 days on first run").
const defaultLookback = 30 * 24 * time.Hour

// Adapter implements ingest.Adapter over a local git repository checkout.
type Adapter struct {
	root        string // directory to scan for repositories
	authorScope AuthorScope
	now         func() time.Time
}

// New returns an Adapter that discovers repositories under root.
func New(root string, scope AuthorScope, now func() time.Time) *Adapter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Adapter{root: root, authorScope: scope, now: now}
}

func (a *Adapter) Discover(ctx context.Context) ([]ingest.SourceCandidate, error) {
	var out []ingest.SourceCandidate
	err := filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			out = append(out, ingest.SourceCandidate{Kind: types.SourceKindGit, Locator: filepath.Dir(path)})
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) WorkingDirs(ctx context.Context) ([]string, error) {
	candidates, err := a.Discover(ctx)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, len(candidates))
	for i, c := range candidates {
		dirs[i] = c.Locator
	}
	return dirs, nil
}

func (a *Adapter) Ingest(ctx context.Context, src types.Source, cursor *types.Cursor) (ingest.Result, error) {
	repo, err := git.PlainOpen(src.Locator)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("open repo %s: %w", src.Locator, ingest.ErrVanished)
	}

	since := a.now().Add(-defaultLookback)
	if cursor != nil && !cursor.FileMtime.IsZero() {
		since = cursor.FileMtime
	}

	var authorEmail string
	if a.authorScope == AuthorScopeSelf {
		if cfg, err := repo.Config(); err == nil {
			authorEmail = cfg.User.Email
		}
	}

	normCtx := ingest.NormContext{
		SourceID:      src.SourceID,
		DeviceID:      src.DeviceID,
		ProjectID:     src.ProjectID,
		SourceKind:    types.SourceKindGit,
		RedactSecrets: src.RedactSecrets,
	}

	events, latest, err := a.commitEvents(repo, normCtx, since, authorEmail)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("walk commits: %w", err)
	}

	branchEvents := a.branchSwitchEvents(normCtx, src.Locator, since)
	events = append(events, branchEvents...)

	newCursorTime := a.now()
	if !latest.IsZero() {
		newCursorTime = latest
	}
	newCursor := &types.Cursor{SourceID: src.SourceID, FileMtime: newCursorTime}

	return ingest.Result{Events: events, NewCursor: newCursor}, nil
}

func (a *Adapter) commitEvents(repo *git.Repository, normCtx ingest.NormContext, since time.Time, authorEmail string) ([]types.Event, time.Time, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, time.Time{}, nil // empty/unborn repository: nothing to walk yet
	}

	commitIter, err := repo.Log(&git.LogOptions{From: head.Hash(), Since: &since})
	if err != nil {
		return nil, time.Time{}, err
	}

	var events []types.Event
	var latest time.Time
	seq := float64(0)
	err = commitIter.ForEach(func(c *object.Commit) error {
		if authorEmail != "" && c.Author.Email != authorEmail {
			return nil
		}

		files, insertions, deletions := a.fileStats(c)
		branches := a.branchesContaining(repo, c.Hash)

		var parentSHAs []string
		for _, h := range c.ParentHashes {
			parentSHAs = append(parentSHAs, h.String())
		}

		meta := types.EventMeta{
			CommitSHA:      c.Hash.String(),
			CommitShortSHA: c.Hash.String()[:minInt(7, len(c.Hash.String()))],
			ParentSHAs:     parentSHAs,
			AuthorName:     c.Author.Name,
			AuthorEmail:    c.Author.Email,
			Branches:       branches,
			Files:          files,
			Insertions:     insertions,
			Deletions:      deletions,
		}
		metaJSON, _ := json.Marshal(meta)

		seq++
		ev := types.Event{
			SourceID:     normCtx.SourceID,
			SourceSeq:    seq,
			DeviceID:     normCtx.DeviceID,
			ProjectID:    normCtx.ProjectID,
			EventTS:      c.Author.When.UTC(),
			IngestTS:     a.now(),
			SourceKind:   normCtx.SourceKind,
			EventType:    types.EventGitCommit,
			TextRedacted: strings.SplitN(c.Message, "\n", 2)[0],
			MetaJSON:     string(metaJSON),
		}
		ev.EventID = ingest.EventID(normCtx.SourceID, seq, c.Hash.String())
		events = append(events, ev)

		if ev.EventTS.After(latest) {
			latest = ev.EventTS
		}
		return nil
	})
	return events, latest, err
}

// fileStats diffs c against its first parent (or an empty tree for a root
// commit) to produce the numstat block spec.md §4.4.4 requires.
func (a *Adapter) fileStats(c *object.Commit) ([]types.CommitFile, int, int) {
	tree, err := c.Tree()
	if err != nil {
		return nil, 0, 0
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err == nil {
			parentTree, _ = parent.Tree()
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, 0, 0
	}

	var files []types.CommitFile
	var totalIns, totalDel int
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		status := "M"
		path := change.To.Name
		switch action {
		case merkletrie.Insert:
			status = "A"
		case merkletrie.Delete:
			status = "D"
			path = change.From.Name
		}

		patch, err := change.Patch()
		var ins, del int
		if err == nil {
			for _, fp := range patch.FilePatches() {
				for _, chunk := range fp.Chunks() {
					switch chunk.Type() {
					case diff.Add:
						ins += strings.Count(chunk.Content(), "\n")
					case diff.Delete:
						del += strings.Count(chunk.Content(), "\n")
					}
				}
			}
		}
		totalIns += ins
		totalDel += del

		files = append(files, types.CommitFile{Path: path, Status: status, Insertions: ins, Deletions: del})
	}
	return files, totalIns, totalDel
}

// branchesContaining returns a best-effort list of local branches whose tip
// history includes hash.
func (a *Adapter) branchesContaining(repo *git.Repository, hash plumbing.Hash) []string {
	refs, err := repo.Branches()
	if err != nil {
		return nil
	}
	var out []string
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		tip, err := repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		found := false
		iter := object.NewCommitPreorderIter(tip, nil, nil)
		_ = iter.ForEach(func(c *object.Commit) error {
			if c.Hash == hash {
				found = true
				return storerStop
			}
			return nil
		})
		if found {
			out = append(out, ref.Name().Short())
		}
		return nil
	})
	return out
}

var storerStop = errors.New("stop walking: commit found")

// branchSwitchEvents parses .git/logs/HEAD for "checkout: moving from X to
// Y" entries (spec.md §4.4.4 branch_switches_since), best-effort: a missing
// or unreadable reflog yields no events rather than an error.
func (a *Adapter) branchSwitchEvents(normCtx ingest.NormContext, locator string, since time.Time) []types.Event {
	path := filepath.Join(locator, ".git", "logs", "HEAD")
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []types.Event
	seq := float64(0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		entry, ok := parseReflogLine(line)
		if !ok || !strings.Contains(entry.message, "checkout: moving from") {
			continue
		}
		if entry.ts.Before(since) {
			continue
		}
		from, to, ok := parseCheckoutMessage(entry.message)
		if !ok {
			continue
		}

		meta := types.EventMeta{FromBranch: from, ToBranch: to, FromSHA: entry.oldSHA, ToSHA: entry.newSHA}
		metaJSON, _ := json.Marshal(meta)

		seq++
		ev := types.Event{
			SourceID:   normCtx.SourceID,
			SourceSeq:  seq,
			DeviceID:   normCtx.DeviceID,
			ProjectID:  normCtx.ProjectID,
			EventTS:    entry.ts,
			IngestTS:   a.now(),
			SourceKind: normCtx.SourceKind,
			EventType:  types.EventGitBranch,
			MetaJSON:   string(metaJSON),
		}
		ev.EventID = ingest.EventID(normCtx.SourceID, seq, entry.oldSHA+entry.newSHA+entry.message)
		events = append(events, ev)
	}
	return events
}

type reflogEntry struct {
	oldSHA, newSHA string
	ts             time.Time
	message        string
}

// parseReflogLine parses one line of .git/logs/HEAD:
// "<old> <new> <name> <email> <unix-ts> <tz>\t<message>".
func parseReflogLine(line string) (reflogEntry, bool) {
	tabIdx := strings.Index(line, "\t")
	if tabIdx < 0 {
		return reflogEntry{}, false
	}
	header, message := line[:tabIdx], line[tabIdx+1:]
	fields := strings.Fields(header)
	if len(fields) < 4 {
		return reflogEntry{}, false
	}
	unixTS, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
	if err != nil {
		return reflogEntry{}, false
	}
	return reflogEntry{
		oldSHA:  fields[0],
		newSHA:  fields[1],
		ts:      time.Unix(unixTS, 0).UTC(),
		message: message,
	}, true
}

// parseCheckoutMessage extracts "from X to Y" out of a reflog checkout
// message of the form "checkout: moving from X to Y".
func parseCheckoutMessage(message string) (from, to string, ok bool) {
	const marker = "checkout: moving from "
	idx := strings.Index(message, marker)
	if idx < 0 {
		return "", "", false
	}
	rest := message[idx+len(marker):]
	parts := strings.SplitN(rest, " to ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSpace(parts[1]), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ ingest.Adapter = (*Adapter)(nil)
