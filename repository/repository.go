// Package repository is the façade that ties every other package together
// into the operations an end user or the CLI actually calls: init, open,
// add, commit, checkout, status, log, and the dedup statistics views.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dits-vcs/dits/cache"
	"github.com/dits-vcs/dits/classify"
	"github.com/dits-vcs/dits/commit"
	"github.com/dits-vcs/dits/config"
	"github.com/dits-vcs/dits/dlog"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/ignore"
	"github.com/dits-vcs/dits/index"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/objectstore"
	"github.com/dits-vcs/dits/refs"
	"github.com/dits-vcs/dits/textengine"
)

// ditsDirName is the control directory created at a repository's root,
// analogous to .git.
const ditsDirName = ".dits"

// ErrAlreadyInitialized is returned by Init when a .dits directory already
// exists at the target path.
var ErrAlreadyInitialized = errors.New("repository: already initialized")

// ErrNotARepository is returned by Open/Discover when no .dits directory
// can be found at or above the given path.
var ErrNotARepository = errors.New("repository: not a dits repository")

// ErrNothingToCommit is returned by Commit when the index has no staged
// changes.
var ErrNothingToCommit = errors.New("repository: nothing to commit")

// ErrFileNotFound is returned by Add when an explicitly named path does
// not exist on disk.
var ErrFileNotFound = errors.New("repository: file not found")

// Repository is the open handle onto a working tree and its .dits control
// directory: every other package's store, wired together.
type Repository struct {
	Root    string // working tree root
	ditsDir string // Root/.dits

	Objects *objectstore.Store
	Refs    *refs.Store
	Text    *textengine.Engine // nil if the text engine could not be opened
	Cache   *cache.Cache
	Config  config.Config
	Logger  *dlog.Logger

	// mu guards the index and ref updates: the façade is the single
	// writer, so concurrent Add/Commit/Checkout calls on one Repository
	// serialize here.
	mu sync.RWMutex

	ignore     *ignore.Matcher
	classifier classify.FileClassifier
	idx        *index.Index
}

// Init creates a new repository at root: the .dits control directory, an
// empty object store, a ref store with HEAD pointing at an as-yet-unborn
// "main" branch, and a default config. root must not already contain a
// .dits directory.
func Init(root string) (*Repository, error) {
	ditsDir := filepath.Join(root, ditsDirName)
	if _, err := os.Stat(ditsDir); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(ditsDir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: init: %w", err)
	}

	refStore := refs.Open(ditsDir)
	if err := refStore.Init(); err != nil {
		return nil, err
	}

	if err := config.Save(ditsDir, config.Default()); err != nil {
		return nil, err
	}

	if err := writeIndexFile(ditsDir, index.New()); err != nil {
		return nil, err
	}

	return Open(root)
}

// Open loads an existing repository rooted at root, which must already
// contain a .dits directory (use Discover to locate it from a subdirectory).
func Open(root string) (*Repository, error) {
	ditsDir := filepath.Join(root, ditsDirName)
	if info, err := os.Stat(ditsDir); err != nil || !info.IsDir() {
		return nil, ErrNotARepository
	}

	objects, err := objectstore.Open(filepath.Join(ditsDir, "objects"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(ditsDir)
	if err != nil {
		return nil, err
	}

	textEngine, err := textengine.Open(filepath.Join(ditsDir, "objects", "git"))
	if err != nil {
		// Degraded mode: GitText-classified files fall back to DitsChunk
		// chunking (an unavailable text engine transparently degrades
		// to the generic-binary path).
		textEngine = nil
	}

	l2Path := cfg.Cache.L2Path
	if l2Path == "" {
		l2Path = filepath.Join(ditsDir, "cache")
	}
	cacheCfg := cache.Config{
		L1MaxBytes:      cfg.Cache.L1MaxBytes,
		L2MaxBytes:      cfg.Cache.L2MaxBytes,
		L2Path:          l2Path,
		PrefetchEnabled: cfg.Cache.PrefetchEnabled == nil || *cfg.Cache.PrefetchEnabled,
		PrefetchCount:   cfg.Cache.PrefetchCount,
	}
	chunkCache, err := cache.New(cacheCfg, objects)
	if err != nil {
		return nil, err
	}
	logger := dlog.Default().With("repo", root)
	chunkCache.SetLogger(logger.With("component", "cache"))

	ignoreMatcher, err := ignore.New(root)
	if err != nil {
		return nil, err
	}

	idx, err := readIndexFile(ditsDir)
	if err != nil {
		return nil, err
	}

	return &Repository{
		Root:       root,
		ditsDir:    ditsDir,
		Objects:    objects,
		Refs:       refs.Open(ditsDir),
		Text:       textEngine,
		Cache:      chunkCache,
		Config:     cfg,
		Logger:     logger,
		ignore:     ignoreMatcher,
		classifier: classify.New(),
		idx:        idx,
	}, nil
}

// Discover walks upward from start looking for a .dits directory, the way
// most VCS tools locate the repository root from any subdirectory.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ditsDirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotARepository
		}
		dir = parent
	}
}

func writeIndexFile(ditsDir string, idx *index.Index) error {
	data, err := idx.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ditsDir, "index"), data, 0o644)
}

func readIndexFile(ditsDir string) (*index.Index, error) {
	data, err := os.ReadFile(filepath.Join(ditsDir, "index"))
	if err != nil {
		if os.IsNotExist(err) {
			return index.New(), nil
		}
		return nil, err
	}
	return index.FromJSON(data)
}

func (r *Repository) persistIndex() error {
	return writeIndexFile(r.ditsDir, r.idx)
}

// headCommitHash returns the commit HEAD currently resolves to, and false
// if the repository has no commits yet.
func (r *Repository) headCommitHash() (hash.CID, bool, error) {
	h, err := r.Refs.ResolveHead()
	if err != nil {
		if errors.Is(err, refs.ErrNotFound) {
			return hash.Zero, false, nil
		}
		return hash.Zero, false, err
	}
	return h, true, nil
}

// headManifest returns the manifest recorded by HEAD's commit, or an empty
// manifest if the repository has no commits yet.
func (r *Repository) headManifest() (*manifest.Manifest, error) {
	h, ok, err := r.headCommitHash()
	if err != nil {
		return nil, err
	}
	if !ok {
		return manifest.New(), nil
	}
	c, err := r.Objects.LoadCommit(h)
	if err != nil {
		return nil, err
	}
	return r.Objects.LoadManifest(c.Manifest)
}

// resolveAuthor builds a commit identity: environment variables take
// priority (via commit.AuthorFromEnv), falling back to the repository's
// configured author when DITS_AUTHOR_*/GIT_AUTHOR_* are both unset.
func (r *Repository) resolveAuthor() commit.Author {
	if os.Getenv("DITS_AUTHOR_NAME") == "" && os.Getenv("GIT_AUTHOR_NAME") == "" && r.Config.Author.Name != "" {
		email := r.Config.Author.Email
		if email == "" || os.Getenv("DITS_AUTHOR_EMAIL") != "" || os.Getenv("GIT_AUTHOR_EMAIL") != "" {
			email = commit.AuthorFromEnv().Email
		}
		return commit.Author{Name: r.Config.Author.Name, Email: email}
	}
	return commit.AuthorFromEnv()
}
