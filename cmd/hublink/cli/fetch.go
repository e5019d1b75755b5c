package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/github"
	"github.com/majorcontext/hublink/internal/ignore"
	"github.com/majorcontext/hublink/internal/ui"
)

var (
	fetchRef        string
	fetchTag        string
	fetchRelease    bool
	fetchSourceDirs []string
	fetchNoRootDir  bool
	fetchNoIgnore   bool
	fetchPath       string
	fetchFile       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <owner/repo> [dest]",
	Short: "Download a GitHub repository into a directory",
	Long: `Download a repository archive from GitHub and extract it into dest
(default: the current directory). Paths matched by the built-in ignore
rules or a .hublinkignore file in dest are skipped.

Examples:
  hublink fetch owner/project ./my-project               # Default branch
  hublink fetch owner/project . --ref develop            # Specific branch
  hublink fetch owner/project . --release --tag v1.2.0   # Release zipball
  hublink fetch owner/project . --source-dir src         # Only src/
  hublink fetch owner/project . --path templates/basic   # One directory via the contents API
  hublink fetch owner/project --file README.md           # Print one file`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	f := fetchCmd.Flags()
	f.StringVar(&fetchRef, "ref", "", "branch, tag or commit to download")
	f.StringVar(&fetchTag, "tag", "", "release tag (with --release)")
	f.BoolVar(&fetchRelease, "release", false, "download a release zipball (latest unless --tag)")
	f.StringSliceVar(&fetchSourceDirs, "source-dir", nil, "only copy these directories from the repository")
	f.BoolVar(&fetchNoRootDir, "no-root-dir", false, "the archive has no top-level directory")
	f.BoolVar(&fetchNoIgnore, "no-ignore", false, "copy every file, ignoring .hublinkignore and the default rules")
	f.StringVar(&fetchPath, "path", "", "download one directory with the contents API instead of the archive")
	f.StringVar(&fetchFile, "file", "", "print one file from the repository")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetchPath != "" && fetchFile != "" {
		return errors.New("--path and --file cannot be used together")
	}
	if fetchTag != "" && !fetchRelease {
		return errors.New("--tag requires --release")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	gh := a.github()
	defer gh.Close()

	repo := args[0]
	ctx := cmd.Context()

	if fetchFile != "" {
		data, err := gh.FetchRepoFile(ctx, repo, fetchFile, fetchRef)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	dest := "."
	if len(args) == 2 {
		dest = args[1]
	}
	dest, err = intcli.ResolveDestDir(dest)
	if err != nil {
		return err
	}

	rules := ignore.New()
	if !fetchNoIgnore {
		if rules, err = ignore.Load(dest); err != nil {
			return err
		}
	}

	if fetchPath != "" {
		n, err := gh.DownloadContents(ctx, repo, fetchPath, dest, fetchRef, func(item github.ContentItem) bool {
			rel := strings.TrimPrefix(strings.TrimPrefix(item.Path, strings.Trim(fetchPath, "/")), "/")
			return !rules.Match(rel, item.Type == "dir")
		})
		if err != nil {
			return err
		}
		ui.Successf("Downloaded %d files from %s/%s into %s", n, repo, strings.Trim(fetchPath, "/"), dest)
		return nil
	}

	ui.Infof("Downloading %s...", repo)
	err = gh.CloneRepo(ctx, repo, dest, github.CloneOptions{
		FetchOptions: github.FetchOptions{
			Ref:       fetchRef,
			IsRelease: fetchRelease,
			Tag:       fetchTag,
		},
		NoRootDir:  fetchNoRootDir,
		SourceDirs: fetchSourceDirs,
		Ignore:     rules,
	})
	if err != nil {
		return err
	}
	ui.Successf("Copied %s into %s", repo, dest)
	return nil
}
