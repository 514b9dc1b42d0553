// Command dits is the thin CLI entry point over the repository façade: it
// parses flags and calls into package repository, nothing more.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/dits-vcs/dits/dlog"
	"github.com/dits-vcs/dits/repository"
	"github.com/dits-vcs/dits/vfs"
)

func main() {
	app := &cli.App{
		Name:  "dits",
		Usage: "version control for repositories dominated by large binary media",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Aliases: []string{"v"}, Value: envOr("DITS_LOG", "info")},
		},
		Commands: []*cli.Command{
			initCmd, addCmd, commitCmd, checkoutCmd, statusCmd, logCmd, statsCmd, mountCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dits:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logger(c *cli.Context) *dlog.Logger {
	return dlog.New(os.Stderr, c.String("log-level"))
}

func openRepo(c *cli.Context) (*repository.Repository, error) {
	root, err := repository.Discover(".")
	if err != nil {
		return nil, err
	}
	r, err := repository.Open(root)
	if err != nil {
		return nil, err
	}
	r.Logger = logger(c)
	return r, nil
}

var initCmd = &cli.Command{
	Name:      "init",
	Usage:     "create a new repository in the current (or given) directory",
	ArgsUsage: "[path]",
	Action: func(c *cli.Context) error {
		path := "."
		if c.Args().Present() {
			path = c.Args().First()
		}
		r, err := repository.Init(path)
		if err != nil {
			return err
		}
		fmt.Printf("initialized empty dits repository in %s\n", r.Root)
		return nil
	},
}

var addCmd = &cli.Command{
	Name:      "add",
	Usage:     "stage one or more files or directories",
	ArgsUsage: "<path>...",
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		if c.NArg() == 0 {
			return fmt.Errorf("add: at least one path is required")
		}
		result, err := r.Add(c.Args().Slice()...)
		if err != nil {
			return err
		}
		fmt.Printf("staged %d file(s), %d bytes\n", result.FilesAdded, result.BytesAdded)
		if result.ChunksDeduped > 0 {
			fmt.Printf("deduplicated %d chunk(s), %d bytes already stored\n", result.ChunksDeduped, result.BytesDeduped)
		}
		for _, s := range result.Skipped {
			fmt.Printf("ignored: %s\n", s)
		}
		return nil
	},
}

var commitCmd = &cli.Command{
	Name:  "commit",
	Usage: "record the staged changes as a new commit",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Required: true},
	},
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		commit, err := r.Commit(c.String("message"))
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", commit.Hash.Short(), commit.Message)
		return nil
	},
}

var checkoutCmd = &cli.Command{
	Name:      "checkout",
	Usage:     "materialize a branch, tag, or commit into the working tree",
	ArgsUsage: "<ref>",
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		if c.NArg() != 1 {
			return fmt.Errorf("checkout: exactly one ref is required")
		}
		result, err := r.Checkout(c.Args().First())
		if err != nil {
			return err
		}
		fmt.Printf("restored %d file(s), %d bytes\n", result.FilesRestored, result.BytesRestored)
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "show staged and unstaged changes",
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		result, err := r.Status()
		if err != nil {
			return err
		}
		if len(result.Staged) > 0 {
			fmt.Println("staged changes:")
			for _, e := range result.Staged {
				fmt.Printf("  %s: %s\n", e.Status, e.Path)
			}
		}
		if len(result.Unstaged) > 0 {
			fmt.Println("not staged:")
			for _, e := range result.Unstaged {
				fmt.Printf("  %s: %s\n", e.Status, e.Path)
			}
		}
		if len(result.Staged) == 0 && len(result.Unstaged) == 0 {
			fmt.Println("nothing to commit, working tree clean")
		}
		return nil
	},
}

var logCmd = &cli.Command{
	Name:  "log",
	Usage: "show commit history from HEAD",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 0},
	},
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		commits, err := r.Log(c.Int("limit"))
		if err != nil {
			return err
		}
		for _, commit := range commits {
			fmt.Printf("commit %s\n", commit.Hash.String())
			fmt.Printf("Author: %s <%s>\n", commit.Author.Name, commit.Author.Email)
			fmt.Printf("Date:   %s\n\n", commit.Timestamp)
			fmt.Printf("    %s\n\n", commit.Message)
		}
		return nil
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "show object-store and dedup statistics",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "ref", Value: "HEAD"},
		&cli.StringFlag{Name: "path", Usage: "restrict dedup stats to a single tracked path"},
	},
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		s, err := r.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("chunks:    %d (%d bytes)\n", s.ChunkCount, s.ChunkBytes)
		fmt.Printf("blobs:     %d (%d bytes)\n", s.BlobCount, s.BlobBytes)
		fmt.Printf("manifests: %d\n", s.ManifestCount)
		fmt.Printf("commits:   %d\n", s.CommitCount)

		target, err := r.Refs.Resolve(c.String("ref"), r.Objects)
		if err != nil {
			return nil // no commits yet: dedup stats are meaningless, not an error
		}

		var dedup repository.DedupStats
		if p := c.String("path"); p != "" {
			dedup, err = r.ComputeFileDedupStats(target, p)
		} else {
			dedup, err = r.ComputeRepoDedupStats(target)
		}
		if err != nil {
			return err
		}
		fmt.Printf("\nlogical size:  %d\n", dedup.LogicalSize)
		fmt.Printf("physical size: %d\n", dedup.PhysicalSize)
		fmt.Printf("saved bytes:   %d (%.1f%%)\n", dedup.SavedBytes, dedup.SavingsPercentage)
		fmt.Printf("dedup ratio:   %.3f\n", dedup.DedupRatio)
		fmt.Printf("unique chunks: %d / %d (%.1f%%)\n", dedup.UniqueChunkCount, dedup.TotalChunkCount, dedup.UniquePercentage)
		return nil
	},
}

// mountCmd builds the read-only VFS tree for a commit and walks it,
// printing the projected layout. A real FUSE binding belongs to a host
// layer; this subcommand exercises vfs.Tree without one. It lists names and
// sizes only: no file contents are read through the vfs.Reader.
var mountCmd = &cli.Command{
	Name:      "mount",
	Usage:     "print the read-only filesystem projection of a commit (dry run, no FUSE binding)",
	ArgsUsage: "<ref>",
	Action: func(c *cli.Context) error {
		r, err := openRepo(c)
		if err != nil {
			return err
		}
		ref := "HEAD"
		if c.NArg() > 0 {
			ref = c.Args().First()
		}
		target, err := r.Refs.Resolve(ref, r.Objects)
		if err != nil {
			return err
		}
		commitObj, err := r.Objects.LoadCommit(target)
		if err != nil {
			return err
		}
		mf, err := r.Objects.LoadManifest(commitObj.Manifest)
		if err != nil {
			return err
		}
		tree := vfs.FromManifest(mf)
		reader := vfs.NewReader(r.Cache, r.Objects)
		return walkPrint(tree, reader, vfs.RootInode, "")
	},
}

func walkPrint(tree *vfs.Tree, reader *vfs.Reader, inode uint64, prefix string) error {
	entries, ok := tree.Readdir(inode)
	if !ok {
		return fmt.Errorf("mount: inode %s is not a directory", strconv.FormatUint(inode, 10))
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child, _ := tree.Get(e.Inode)
		path := prefix + e.Name
		switch e.Type {
		case vfs.TypeDirectory:
			fmt.Printf("%s/\n", path)
			if err := walkPrint(tree, reader, e.Inode, path+"/"); err != nil {
				return err
			}
		default:
			fmt.Printf("%s (%d bytes)\n", path, child.Size)
		}
	}
	return nil
}
