// Package commit implements the commit graph: immutable, content-addressed
// snapshots linking a manifest to its parent history.
package commit

import (
	"os"
	"strings"
	"time"

	"github.com/dits-vcs/dits/hash"
)

// Author identifies who made a commit.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthorFromEnv derives an Author from environment variables, falling back
// through DITS_AUTHOR_* then GIT_AUTHOR_* then the OS user, and finally a
// synthesized email of "name@localhost" when none is set explicitly.
func AuthorFromEnv() Author {
	name := firstNonEmpty(os.Getenv("DITS_AUTHOR_NAME"), os.Getenv("GIT_AUTHOR_NAME"), os.Getenv("USER"))
	if name == "" {
		name = "Unknown"
	}

	email := firstNonEmpty(os.Getenv("DITS_AUTHOR_EMAIL"), os.Getenv("GIT_AUTHOR_EMAIL"))
	if email == "" {
		email = strings.ToLower(name) + "@localhost"
	}

	return Author{Name: name, Email: email}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Commit is an immutable snapshot: a manifest, a message, an author, and a
// link to its parent(s).
type Commit struct {
	Hash      hash.CID   `json:"hash"`
	Parent    *hash.CID  `json:"parent,omitempty"`
	Parents   []hash.CID `json:"parents,omitempty"`
	Manifest  hash.CID   `json:"manifest"`
	Message   string     `json:"message"`
	Author    Author     `json:"author"`
	Committer Author     `json:"committer"`
	Timestamp time.Time  `json:"timestamp"`
}

// New builds a commit with a single (or no) parent. timestamp is an
// explicit parameter rather than an internal clock read, so commit hashes
// stay reproducible in tests.
func New(parent *hash.CID, manifest hash.CID, message string, author Author, timestamp time.Time) *Commit {
	return build(parent, nil, manifest, message, author, timestamp)
}

// NewMerge builds a commit with a primary parent plus one or more extra
// (merge) parents.
func NewMerge(parent hash.CID, extraParents []hash.CID, manifest hash.CID, message string, author Author, timestamp time.Time) *Commit {
	p := parent
	return build(&p, extraParents, manifest, message, author, timestamp)
}

func build(parent *hash.CID, extraParents []hash.CID, manifest hash.CID, message string, author Author, timestamp time.Time) *Commit {
	c := &Commit{
		Parent:    parent,
		Parents:   extraParents,
		Manifest:  manifest,
		Message:   message,
		Author:    author,
		Committer: author,
		Timestamp: timestamp.UTC(),
	}
	c.Hash = c.computeHash()
	return c
}

// computeHash derives the commit's content identifier from an exact,
// ordered sequence of fields: primary parent, then extra parents in order,
// then manifest, message, author name, author email, and RFC3339 timestamp.
// The order is load-bearing: any change here changes every commit hash.
func (c *Commit) computeHash() hash.CID {
	h := hash.NewHasher()
	if c.Parent != nil {
		h.Write(c.Parent.Bytes())
	}
	for _, p := range c.Parents {
		h.Write(p.Bytes())
	}
	h.Write(c.Manifest.Bytes())
	h.Write([]byte(c.Message))
	h.Write([]byte(c.Author.Name))
	h.Write([]byte(c.Author.Email))
	h.Write([]byte(c.Timestamp.Format(time.RFC3339)))
	return h.Sum()
}

// ComputeHash re-derives the commit's identifier from its current fields.
// A stored commit whose recorded Hash no longer matches is corrupt.
func (c *Commit) ComputeHash() hash.CID {
	return c.computeHash()
}

// AllParents returns every parent, primary first, then extras.
func (c *Commit) AllParents() []hash.CID {
	out := make([]hash.CID, 0, 1+len(c.Parents))
	if c.Parent != nil {
		out = append(out, *c.Parent)
	}
	out = append(out, c.Parents...)
	return out
}

// IsMerge reports whether this commit has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 0
}

// IsRoot reports whether this commit has no parent at all.
func (c *Commit) IsRoot() bool {
	return c.Parent == nil && len(c.Parents) == 0
}
