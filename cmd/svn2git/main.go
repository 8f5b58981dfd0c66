// Command svn2git converts an SVN repository (a local dump file, a
// local repository via svnadmin, or a remote URL via svnrdump) into a
// bare Git repository.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/trace"
	"strings"

	"github.com/spf13/cobra"

	"github.com/svn2git/svn2git/internal/baton"
	"github.com/svn2git/svn2git/internal/branch"
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/config"
	"github.com/svn2git/svn2git/internal/dump"
	"github.com/svn2git/svn2git/internal/gitobj"
	"github.com/svn2git/svn2git/internal/livesvn"
	"github.com/svn2git/svn2git/internal/logging"
	"github.com/svn2git/svn2git/internal/mirror"
	"github.com/svn2git/svn2git/internal/objcache"
	"github.com/svn2git/svn2git/internal/pack"
	"github.com/svn2git/svn2git/internal/refs"
	"github.com/svn2git/svn2git/internal/stage1"
	"github.com/svn2git/svn2git/internal/stage2"
	"github.com/svn2git/svn2git/internal/usermap"
)

var (
	flagSrc         string
	flagDest        string
	flagConvParams  string
	flagObjCacheMiB int64
	flagStderrLevel string
	flagFileLevel   string
	flagLogFile     string
	flagNoProgress  bool
	flagGitRepack   bool
)

func main() {
	root := &cobra.Command{
		Use:   "svn2git",
		Short: "Convert an SVN repository to a bare Git repository",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagSrc, "src", "s", "", "SVN dump file, repository path, or URL (required)")
	root.Flags().StringVarP(&flagDest, "dest", "d", "", "destination bare Git repository path (required)")
	root.Flags().StringVarP(&flagConvParams, "conv-params", "P", "", "conversion parameters file (TOML or YAML)")
	root.Flags().Int64Var(&flagObjCacheMiB, "obj-cache-size", 0, "object cache size in MiB (0 = default)")
	root.Flags().StringVar(&flagStderrLevel, "stderr-log-level", "", "stderr log level (trace/debug/info/warn/error)")
	root.Flags().StringVar(&flagFileLevel, "file-log-level", "", "log file level")
	root.Flags().StringVar(&flagLogFile, "log-file", "", "additional log file path")
	root.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress baton")
	root.Flags().BoolVar(&flagGitRepack, "git-repack", false, "run `git repack` after conversion")
	root.MarkFlagRequired("src")
	root.MarkFlagRequired("dest")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "svn2git:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, task := trace.NewTask(context.Background(), "svn2git-convert")
	defer task.End()

	params := config.Default()
	if flagConvParams != "" {
		p, err := config.Load(flagConvParams)
		if err != nil {
			return err
		}
		params = p
	}
	if flagSrc != "" {
		params.Source = flagSrc
	}
	if flagDest != "" {
		params.Destination = flagDest
	}
	if flagObjCacheMiB > 0 {
		params.ObjCacheSizeBytes = flagObjCacheMiB << 20
	}
	if flagStderrLevel != "" {
		params.StderrLogLevel = flagStderrLevel
	}
	if flagFileLevel != "" {
		params.FileLogLevel = flagFileLevel
	}
	if flagLogFile != "" {
		params.LogFile = flagLogFile
	}
	params.NoProgress = params.NoProgress || flagNoProgress
	params.GitRepack = params.GitRepack || flagGitRepack

	log, err := logging.New(params.StderrLogLevel, params.FileLogLevel, params.LogFile)
	if err != nil {
		return err
	}

	classifier, err := classify.New(classify.Config{
		Branches:        params.Branches,
		Tags:            params.Tags,
		PartialBranches: params.PartialBranches,
		PartialTags:     params.PartialTags,
		RenameBranches:  params.RenameBranches,
		RenameTags:      params.RenameTags,
		UnbranchedName:  params.UnbranchedName,
		DeleteFiles:     params.DeleteFiles,
		MergeOptional:   params.MergeOptional,
	})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var users usermap.Map
	if params.UserMapFile != "" {
		f, err := os.Open(params.UserMapFile)
		if err != nil {
			return err
		}
		users, err = usermap.Load(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	source, err := openSource(params.Source, log)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := pack.InitBareRepo(params.Destination); err != nil {
		return err
	}
	writer, err := pack.NewWriter(params.Destination)
	if err != nil {
		return err
	}

	store := branch.NewStore(params.UnbranchedName)
	history := mirror.NewHistory()
	cache := objcache.New(params.ObjCacheSizeBytes)

	stage1Driver := stage1.NewDriver(classifier, store, history, params.UnbranchedName, log)
	stage2Driver := stage2.NewDriver(
		writer, cache, store, classifier,
		stage1Driver, stage1Driver, history,
		users, "localhost",
		params.EnableMerges, params.GenerateGitignore,
		log,
	)

	progress := baton.New(params.NoProgress)
	progress.StartProgress("converting", 0)

	var count uint64
	region := trace.StartRegion(ctx, "drive-revisions")
	for {
		rev, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			region.End()
			return err
		}
		recs, err := stage1Driver.ProcessRevision(rev)
		if err != nil {
			region.End()
			return err
		}
		for _, rec := range recs {
			if _, err := stage2Driver.ProcessRecord(rec); err != nil {
				region.End()
				return err
			}
		}
		count++
		progress.Update(count)
	}
	region.End()
	progress.EndProgress()

	if err := refs.Finalize(store, writer, params.Head, params.KeepDeletedBranches, params.KeepDeletedTags); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	if params.RevisionMapFile != "" {
		if err := writeRevisionMap(params.RevisionMapFile, store, stage2Driver); err != nil {
			log.Warnf("writing revision map: %v", err)
		}
	}

	if params.GitRepack {
		repack := exec.CommandContext(ctx, "git", "-C", params.Destination, "repack", "-ad")
		repack.Stdout, repack.Stderr = os.Stdout, os.Stderr
		if err := repack.Run(); err != nil {
			log.Warnf("git repack: %v", err)
		}
	}

	return nil
}

func openSource(src string, log *logging.Logger) (interface {
	Next() (*dump.Revision, error)
	Close() error
}, error) {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "svn://"):
		return livesvn.FromRemoteURL(src, log)
	default:
		info, err := os.Stat(src)
		if err == nil && info.IsDir() {
			return livesvn.FromLocalRepository(src, log)
		}
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", src, err)
		}
		return dump.NewReader(f)
	}
}

func writeRevisionMap(path string, store *branch.Store, stage2Driver *stage2.Driver) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, entry := range stage2Driver.RevisionMap() {
		b := store.ByID(entry.BranchID)
		name := "?"
		if b != nil {
			name = b.GitName
		}
		fmt.Fprintf(f, "%s\t%d\t%s\n", name, entry.SVNRev, entry.Oid)
	}
	return nil
}

var _ gitobj.Emitter = (*pack.Writer)(nil)
