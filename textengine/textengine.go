// Package textengine adapts Git's line-oriented tooling for the file
// categories that benefit from it: SHA-1 content-addressed blob storage,
// line diffing, and a naive three-way text merge.
package textengine

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Sentinel errors for the text engine's failure modes.
var (
	// ErrBlobNotFound is returned when an oid names no stored blob.
	ErrBlobNotFound = errors.New("textengine: blob not found")
	// ErrInvalidUtf8 is returned when content offered to the text engine
	// is not valid UTF-8; such content belongs on the chunked path.
	ErrInvalidUtf8 = errors.New("textengine: content is not valid UTF-8")
)

// Engine stores and retrieves text blobs through a bare Git repository's
// object database, giving Dits SHA-1 content addressing and line-level
// diff/merge for free on the file categories classified as GitText.
type Engine struct {
	repo *git.Repository
}

// Open opens (creating if absent) a bare repository at path to back the
// text engine's blob store. path is typically <repo>/.dits/objects/git.
func Open(path string) (*Engine, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return &Engine{repo: repo}, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, fmt.Errorf("textengine: open %s: %w", path, err)
	}
	repo, err = git.PlainInit(path, true)
	if err != nil {
		return nil, fmt.Errorf("textengine: init %s: %w", path, err)
	}
	return &Engine{repo: repo}, nil
}

// StoreBlob writes data as a git blob object and returns its SHA-1 hex
// object id. Non-UTF-8 content is refused with ErrInvalidUtf8.
func (e *Engine) StoreBlob(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidUtf8
	}
	obj := e.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", fmt.Errorf("textengine: open blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("textengine: write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("textengine: close blob writer: %w", err)
	}
	h, err := e.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("textengine: store blob: %w", err)
	}
	return h.String(), nil
}

// ReadBlob returns the raw bytes of the git blob identified by oid (a hex
// SHA-1 string). An unknown oid is reported as ErrBlobNotFound.
func (e *Engine) ReadBlob(oid string) ([]byte, error) {
	h := plumbing.NewHash(oid)
	blob, err := e.repo.BlobObject(h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, oid)
		}
		return nil, fmt.Errorf("textengine: load blob %s: %w", oid, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("textengine: read blob %s: %w", oid, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("textengine: read blob %s: %w", oid, err)
	}
	return data, nil
}

// ReadBlobString is ReadBlob decoded as a UTF-8 string.
func (e *Engine) ReadBlobString(oid string) (string, error) {
	data, err := e.ReadBlob(oid)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasBlob reports whether oid names an existing blob object.
func (e *Engine) HasBlob(oid string) bool {
	h := plumbing.NewHash(oid)
	_, err := e.repo.BlobObject(h)
	return err == nil
}

// ParseOID validates that oid is a well-formed SHA-1 hex string.
func ParseOID(oid string) (plumbing.Hash, error) {
	if len(oid) != 40 || strings.Trim(oid, "0123456789abcdefABCDEF") != "" {
		return plumbing.ZeroHash, fmt.Errorf("textengine: invalid object id %q", oid)
	}
	return plumbing.NewHash(oid), nil
}

// DiffLineType classifies a line within a diff hunk.
type DiffLineType int

const (
	DiffContext DiffLineType = iota
	DiffAdded
	DiffRemoved
)

// DiffLine is one line within a hunk, tagged with its type and its line
// numbers in the old and new text (zero when not applicable).
type DiffLine struct {
	Type       DiffLineType
	Content    string
	OldLineNo  int
	NewLineNo  int
}

// DiffHunk is a contiguous run of changed lines plus surrounding context.
type DiffHunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Header   string
	Lines    []DiffLine
}

// DiffStats summarizes a diff's line-level magnitude.
type DiffStats struct {
	Additions int
	Deletions int
}

// DiffResult is a complete line diff between two texts.
type DiffResult struct {
	Path  string
	Hunks []DiffHunk
	Stats DiffStats
}

// numberedLine is an intermediate representation used while grouping a
// flat diff-line sequence into hunks: a classified line plus its position
// in the old and new texts (0 when it has none).
type numberedLine struct {
	typ          DiffLineType
	content      string
	oldNo, newNo int
}

// DiffText computes a line-oriented diff between old and new, grouping
// changes into hunks with contextLines of surrounding unchanged lines.
func DiffText(path, oldText, newText string, contextLines int) DiffResult {
	dmp := diffmatchpatch.New()
	oldLines, newLines, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldLines, newLines, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	result := DiffResult{Path: path}
	oldNo, newNo := 1, 1
	var numbered []numberedLine
	for _, d := range diffs {
		lines := splitLinesKeepEmpty(d.Text)
		var typ DiffLineType
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = DiffAdded
		case diffmatchpatch.DiffDelete:
			typ = DiffRemoved
		default:
			typ = DiffContext
		}
		for _, content := range lines {
			nl := numberedLine{typ: typ, content: content}
			switch typ {
			case DiffContext:
				nl.oldNo, nl.newNo = oldNo, newNo
				oldNo++
				newNo++
			case DiffRemoved:
				nl.oldNo = oldNo
				oldNo++
			case DiffAdded:
				nl.newNo = newNo
				newNo++
			}
			numbered = append(numbered, nl)
			if typ == DiffAdded {
				result.Stats.Additions++
			} else if typ == DiffRemoved {
				result.Stats.Deletions++
			}
		}
	}

	result.Hunks = groupIntoHunks(numbered, contextLines)
	return result
}

func groupIntoHunks(lines []numberedLine, contextLines int) []DiffHunk {
	n := len(lines)
	changed := make([]bool, n)
	for i, l := range lines {
		changed[i] = l.typ != DiffContext
	}

	var ranges [][2]int
	i := 0
	for i < n {
		if !changed[i] {
			i++
			continue
		}
		start := i
		for i < n && changed[i] {
			i++
		}
		lo := start - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := i + contextLines
		if hi > n {
			hi = n
		}
		if len(ranges) > 0 && lo <= ranges[len(ranges)-1][1] {
			ranges[len(ranges)-1][1] = hi
		} else {
			ranges = append(ranges, [2]int{lo, hi})
		}
	}

	var hunks []DiffHunk
	for _, rg := range ranges {
		var hunkLines []DiffLine
		var oldStart, newStart int
		oldCount, newCount := 0, 0
		for j := rg[0]; j < rg[1]; j++ {
			l := lines[j]
			if oldStart == 0 && l.oldNo != 0 {
				oldStart = l.oldNo
			}
			if newStart == 0 && l.newNo != 0 {
				newStart = l.newNo
			}
			if l.typ != DiffAdded {
				oldCount++
			}
			if l.typ != DiffRemoved {
				newCount++
			}
			hunkLines = append(hunkLines, DiffLine{
				Type:      l.typ,
				Content:   l.content,
				OldLineNo: l.oldNo,
				NewLineNo: l.newNo,
			})
		}
		h := DiffHunk{
			OldStart: oldStart,
			OldLines: oldCount,
			NewStart: newStart,
			NewLines: newCount,
			Lines:    hunkLines,
		}
		h.Header = fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		hunks = append(hunks, h)
	}
	return hunks
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// MergeOutcome distinguishes a clean merge from one with conflicts.
type MergeOutcome int

const (
	MergeClean MergeOutcome = iota
	MergeConflict
)

// MergeResult is the outcome of a three-way text merge.
type MergeResult struct {
	Outcome      MergeOutcome
	Content      string
	MarkerCount  int
}

// MergeText performs a naive, positional line-by-line three-way merge: for
// each line index, if ours and theirs agree, use it; if only one side
// changed from base, take the change; otherwise emit a conflict marker
// block. This is deliberately simpler than a diff3 merge — it does not
// track insertions/deletions shifting line numbers — matching the
// behavior expected of the line-diff storage strategy.
func MergeText(base, ours, theirs string, oursLabel, theirsLabel string) MergeResult {
	baseLines := splitLinesRaw(base)
	oursLines := splitLinesRaw(ours)
	theirsLines := splitLinesRaw(theirs)

	n := max3(len(baseLines), len(oursLines), len(theirsLines))
	var out strings.Builder
	markerCount := 0

	lineAt := func(lines []string, i int) string {
		if i < len(lines) {
			return lines[i]
		}
		return ""
	}

	for i := 0; i < n; i++ {
		b := lineAt(baseLines, i)
		o := lineAt(oursLines, i)
		t := lineAt(theirsLines, i)

		switch {
		case o == t:
			out.WriteString(o)
			out.WriteByte('\n')
		case o == b:
			out.WriteString(t)
			out.WriteByte('\n')
		case t == b:
			out.WriteString(o)
			out.WriteByte('\n')
		default:
			markerCount++
			fmt.Fprintf(&out, "<<<<<<< %s\n%s\n=======\n%s\n>>>>>>> %s\n", oursLabel, o, t, theirsLabel)
		}
	}

	outcome := MergeClean
	if markerCount > 0 {
		outcome = MergeConflict
	}
	return MergeResult{Outcome: outcome, Content: out.String(), MarkerCount: markerCount}
}

func splitLinesRaw(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

