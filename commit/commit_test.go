package commit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dits-vcs/dits/hash"
)

var (
	testAuthor = Author{Name: "Ada", Email: "ada@example.com"}
	testTime   = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
)

// TestIdenticalInputsIdenticalHash: same parents, manifest, message,
// author, and timestamp produce the same commit identifier.
func TestIdenticalInputsIdenticalHash(t *testing.T) {
	m := hash.FromBytes([]byte("manifest"))
	a := New(nil, m, "initial", testAuthor, testTime)
	b := New(nil, m, "initial", testAuthor, testTime)
	assert.Equal(t, a.Hash, b.Hash)
}

func TestTimestampChangesHash(t *testing.T) {
	m := hash.FromBytes([]byte("manifest"))
	a := New(nil, m, "initial", testAuthor, testTime)
	b := New(nil, m, "initial", testAuthor, testTime.Add(time.Second))
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestParentChangesHash(t *testing.T) {
	m := hash.FromBytes([]byte("manifest"))
	root := New(nil, m, "root", testAuthor, testTime)
	child := New(&root.Hash, m, "root", testAuthor, testTime)
	assert.NotEqual(t, root.Hash, child.Hash)
}

func TestAllParentsOrder(t *testing.T) {
	m := hash.FromBytes([]byte("manifest"))
	p1 := hash.FromBytes([]byte("p1"))
	p2 := hash.FromBytes([]byte("p2"))
	p3 := hash.FromBytes([]byte("p3"))

	merge := NewMerge(p1, []hash.CID{p2, p3}, m, "merge", testAuthor, testTime)
	require.True(t, merge.IsMerge())
	assert.Equal(t, []hash.CID{p1, p2, p3}, merge.AllParents())
}

func TestRootDetection(t *testing.T) {
	m := hash.FromBytes([]byte("manifest"))
	root := New(nil, m, "root", testAuthor, testTime)
	assert.True(t, root.IsRoot())
	assert.False(t, root.IsMerge())

	child := New(&root.Hash, m, "child", testAuthor, testTime)
	assert.False(t, child.IsRoot())
}

func TestAuthorFromEnvPrecedence(t *testing.T) {
	t.Setenv("DITS_AUTHOR_NAME", "Dits Name")
	t.Setenv("GIT_AUTHOR_NAME", "Git Name")
	t.Setenv("DITS_AUTHOR_EMAIL", "dits@example.com")
	t.Setenv("GIT_AUTHOR_EMAIL", "git@example.com")

	a := AuthorFromEnv()
	assert.Equal(t, "Dits Name", a.Name)
	assert.Equal(t, "dits@example.com", a.Email)
}

func TestAuthorFromEnvFallbacks(t *testing.T) {
	t.Setenv("DITS_AUTHOR_NAME", "")
	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("USER", "casey")
	t.Setenv("DITS_AUTHOR_EMAIL", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")

	a := AuthorFromEnv()
	assert.Equal(t, "casey", a.Name)
	assert.Equal(t, "casey@localhost", a.Email)
}
