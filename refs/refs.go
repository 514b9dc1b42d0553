// Package refs implements the reference store: branches, tags, HEAD, and
// the reflog, plus the full ref/prefix resolution protocol used to turn a
// user-supplied name into a commit hash.
package refs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/objectstore"
)

// ErrNotFound is returned when a branch, tag, or ref expression cannot be
// resolved to a commit.
var ErrNotFound = errors.New("refs: not found")

// ErrAmbiguousPrefix is returned when a hex prefix matches more than one
// commit: ambiguity is treated as "not found" by this layer, but this
// distinguishes that case for callers that want to report it separately.
var ErrAmbiguousPrefix = errors.New("refs: ambiguous commit prefix")

const headFileContent = "ref: refs/heads/%s\n"

var headRefPattern = regexp.MustCompile(`^ref: refs/heads/(.+)\n?$`)

// HeadState is the resolved shape of HEAD: either attached to a branch, or
// detached at a specific commit.
type HeadState struct {
	Branch   string   // non-empty when attached
	Detached hash.CID // valid when Branch == ""
}

// IsDetached reports whether HEAD points directly at a commit rather than
// a branch.
func (h HeadState) IsDetached() bool { return h.Branch == "" }

// Store manages branches, tags, HEAD, and the reflog under a repository's
// refs/ and HEAD/logs paths.
type Store struct {
	root     string // typically <repo>/.dits
	headsDir string
	tagsDir  string
	headPath string
	logsDir  string
}

// Open returns a Store rooted at root (the .dits directory), which must
// already have been initialized via Init.
func Open(root string) *Store {
	return &Store{
		root:     root,
		headsDir: filepath.Join(root, "refs", "heads"),
		tagsDir:  filepath.Join(root, "refs", "tags"),
		headPath: filepath.Join(root, "HEAD"),
		logsDir:  filepath.Join(root, "logs"),
	}
}

// Init creates the refs/heads, refs/tags, and logs directories and points
// HEAD at refs/heads/main (which need not yet exist as a branch).
func (s *Store) Init() error {
	for _, dir := range []string{s.headsDir, s.tagsDir, s.logsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("refs: init: %w", err)
		}
	}
	return writeAtomic(s.headPath, []byte(fmt.Sprintf(headFileContent, "main")))
}

// ReadHead returns the current HEAD state.
func (s *Store) ReadHead() (HeadState, error) {
	data, err := os.ReadFile(s.headPath)
	if err != nil {
		return HeadState{}, fmt.Errorf("refs: read HEAD: %w", err)
	}
	content := string(data)
	if m := headRefPattern.FindStringSubmatch(content); m != nil {
		return HeadState{Branch: m[1]}, nil
	}
	h, err := hash.FromHex(strings.TrimSpace(content))
	if err != nil {
		return HeadState{}, fmt.Errorf("refs: malformed HEAD: %w", err)
	}
	return HeadState{Detached: h}, nil
}

// SetHeadBranch points HEAD at branch (which need not yet exist).
func (s *Store) SetHeadBranch(branch string) error {
	return writeAtomic(s.headPath, []byte(fmt.Sprintf(headFileContent, branch)))
}

// SetHeadDetached points HEAD directly at a commit.
func (s *Store) SetHeadDetached(h hash.CID) error {
	return writeAtomic(s.headPath, []byte(h.String()+"\n"))
}

// ResolveHead returns the commit hash HEAD currently points to.
func (s *Store) ResolveHead() (hash.CID, error) {
	state, err := s.ReadHead()
	if err != nil {
		return hash.Zero, err
	}
	if state.IsDetached() {
		return state.Detached, nil
	}
	return s.GetBranch(state.Branch)
}

// CurrentBranch returns the branch HEAD is attached to, or "" if detached.
func (s *Store) CurrentBranch() (string, error) {
	state, err := s.ReadHead()
	if err != nil {
		return "", err
	}
	return state.Branch, nil
}

// GetBranch returns the commit hash a branch currently points to.
func (s *Store) GetBranch(name string) (hash.CID, error) {
	return readRef(filepath.Join(s.headsDir, name))
}

// SetBranch points branch name at commit h, recording a generic "update"
// reflog action.
func (s *Store) SetBranch(name string, h hash.CID) error {
	return s.SetBranchWithAction(name, h, "update")
}

// SetBranchWithAction points branch name at commit h and appends a reflog
// line carrying the named action (e.g. "commit", "branch", "reset") and
// the branch's previous tip, if it had one.
func (s *Store) SetBranchWithAction(name string, h hash.CID, action string) error {
	var prev *hash.CID
	if cur, err := s.GetBranch(name); err == nil {
		p := cur
		prev = &p
	}
	if err := writeAtomic(filepath.Join(s.headsDir, name), []byte(h.String()+"\n")); err != nil {
		return err
	}
	return s.appendReflog(name, h, prev, action)
}

// DeleteBranch removes a branch.
func (s *Store) DeleteBranch(name string) error {
	if err := os.Remove(filepath.Join(s.headsDir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ListBranches returns every branch name, sorted.
func (s *Store) ListBranches() ([]string, error) {
	return listRefs(s.headsDir)
}

// GetTag returns the commit hash a tag points to.
func (s *Store) GetTag(name string) (hash.CID, error) {
	return readRef(filepath.Join(s.tagsDir, name))
}

// SetTag points tag name at commit h. Tags are not reflogged: they are not
// expected to move.
func (s *Store) SetTag(name string, h hash.CID) error {
	return writeAtomic(filepath.Join(s.tagsDir, name), []byte(h.String()+"\n"))
}

// ListTags returns every tag name, sorted.
func (s *Store) ListTags() ([]string, error) {
	return listRefs(s.tagsDir)
}

func readRef(path string) (hash.CID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return hash.Zero, ErrNotFound
		}
		return hash.Zero, err
	}
	return hash.FromHex(strings.TrimSpace(string(data)))
}

func listRefs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReflogEntry is one line of logs/<refname>: the new tip, the previous
// tip when there was one, the operation that moved it, and when. The id
// is a correlation key so related entries (e.g. from a single command
// invocation) can be grouped without relying on timestamp proximity.
type ReflogEntry struct {
	ID        string    `json:"id"`
	Commit    hash.CID  `json:"cid"`
	PrevCID   *hash.CID `json:"prev_cid,omitempty"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Store) appendReflog(branch string, h hash.CID, prev *hash.CID, action string) error {
	path := filepath.Join(s.logsDir, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	entry := ReflogEntry{ID: uuid.NewString(), Commit: h, PrevCID: prev, Action: action, Timestamp: time.Now().UTC()}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("refs: marshal reflog entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("refs: open reflog: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("refs: write reflog: %w", err)
	}
	return nil
}

// Reflog returns every recorded update to branch's tip, oldest first.
func (s *Store) Reflog(branch string) ([]ReflogEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.logsDir, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []ReflogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e ReflogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("refs: parse reflog entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var relativeRefPattern = regexp.MustCompile(`^(.*?)([~^])(\d*)$`)

// Resolve turns a ref expression into a commit hash, trying in order:
// a relative suffix (~N/^N, walking only primary parents from a resolved
// base), the literal "HEAD", a branch name, a tag name, and finally a
// hex commit-hash prefix of at least 6 characters. A prefix matching more
// than one commit is treated as not found, not as a pick of the first
// match — ambiguity must not silently resolve to an arbitrary commit.
func (s *Store) Resolve(expr string, objects *objectstore.Store) (hash.CID, error) {
	if m := relativeRefPattern.FindStringSubmatch(expr); m != nil {
		base, steps, err := parseRelative(m)
		if err != nil {
			return hash.Zero, err
		}
		baseHash, err := s.resolveBase(base, objects)
		if err != nil {
			return hash.Zero, err
		}
		return walkBackCommits(objects, baseHash, steps)
	}
	return s.resolveBase(expr, objects)
}

func parseRelative(m []string) (base string, steps int, err error) {
	base = m[1]
	numStr := m[3]
	n := 1
	if numStr != "" {
		n, err = strconv.Atoi(numStr)
		if err != nil {
			return "", 0, fmt.Errorf("refs: invalid relative ref %q: %w", numStr, err)
		}
	}
	if base == "" {
		base = "HEAD"
	}
	return base, n, nil
}

func walkBackCommits(objects *objectstore.Store, start hash.CID, steps int) (hash.CID, error) {
	current := start
	for i := 0; i < steps; i++ {
		c, err := objects.LoadCommit(current)
		if err != nil {
			return hash.Zero, fmt.Errorf("refs: walk back from %s: %w", current.Short(), err)
		}
		if c.Parent == nil {
			return hash.Zero, ErrNotFound
		}
		current = *c.Parent
	}
	return current, nil
}

// resolveBase resolves a non-relative ref expression: HEAD, a branch, a
// tag, or a commit-hash prefix.
func (s *Store) resolveBase(expr string, objects *objectstore.Store) (hash.CID, error) {
	if strings.EqualFold(expr, "HEAD") {
		return s.ResolveHead()
	}
	if h, err := s.GetBranch(expr); err == nil {
		return h, nil
	} else if !errors.Is(err, ErrNotFound) {
		return hash.Zero, err
	}
	if h, err := s.GetTag(expr); err == nil {
		return h, nil
	} else if !errors.Is(err, ErrNotFound) {
		return hash.Zero, err
	}
	if isHexPrefix(expr) && len(expr) >= 6 {
		return s.resolvePrefix(expr, objects)
	}
	return hash.Zero, ErrNotFound
}

// ResolveCommitByPrefix resolves an abbreviated commit hash against the
// object store. Zero matches yield ErrNotFound; more than one yields
// ErrAmbiguousPrefix so callers can report the ambiguity distinctly.
func (s *Store) ResolveCommitByPrefix(prefix string, objects *objectstore.Store) (hash.CID, error) {
	matches, err := objects.CommitPrefixMatches(strings.ToLower(prefix))
	if err != nil {
		return hash.Zero, err
	}
	switch len(matches) {
	case 0:
		return hash.Zero, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return hash.Zero, ErrAmbiguousPrefix
	}
}

// resolvePrefix is the Resolve-internal wrapper: ambiguity folds into "not
// found" so an ambiguous prefix never silently picks a commit.
func (s *Store) resolvePrefix(prefix string, objects *objectstore.Store) (hash.CID, error) {
	h, err := s.ResolveCommitByPrefix(prefix, objects)
	if errors.Is(err, ErrAmbiguousPrefix) {
		return hash.Zero, ErrNotFound
	}
	return h, err
}

func isHexPrefix(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
