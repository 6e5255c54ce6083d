package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/config"
	"github.com/bis0908/naver-blog-image-downloader/internal/fetch"
	"github.com/bis0908/naver-blog-image-downloader/internal/progress"
	"github.com/bis0908/naver-blog-image-downloader/internal/scrape"
	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
	"github.com/spf13/cobra"
)

// postSource resolves post URLs to image URL lists. It stays nil unless a
// scraper implementation is plugged in; manifests are the supported route
// out of the box.
var postSource scrape.Source

// fetchCmd represents the fetch command for downloading post images.
var fetchCmd = &cobra.Command{
	Use:   "fetch [post-url]",
	Short: "Download images from a Naver blog post",
	Long: `Download the images of a Naver blog post into a subdirectory named
after the post title. Image URLs come from a manifest file (one URL per
line, # comments allowed) or from a configured post scraper.

With --transform the downloaded images are immediately run through the
randomized transformation batch into a "transformed" subdirectory, and
sources are deleted as each transformation succeeds.

Examples:
  nbid fetch --manifest urls.txt --output downloads
  nbid fetch --manifest urls.txt --title "낙산공원 야경" --transform
  nbid fetch https://blog.naver.com/myblog/223456789012 --output downloads`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runFetchCommand,
}

// fetchSettings holds the effective fetch run configuration after merging
// config file values with CLI flag overrides.
type fetchSettings struct {
	manifest   string
	outputRoot string
	title      string
	chain      bool
	skipEdges  bool
	quiet      bool
}

func configToFetchSettings(cfg *config.Config, cmd *cobra.Command) fetchSettings {
	settings := fetchSettings{
		outputRoot: cfg.OutputDir,
		skipEdges:  cfg.Fetch.SkipEdgeImages,
	}

	if cmd.Flags().Changed("output") {
		settings.outputRoot, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("skip-edges") {
		settings.skipEdges, _ = cmd.Flags().GetBool("skip-edges")
	}

	settings.manifest, _ = cmd.Flags().GetString("manifest")
	settings.title, _ = cmd.Flags().GetString("title")
	settings.chain, _ = cmd.Flags().GetBool("transform")
	settings.quiet, _ = cmd.Flags().GetBool("quiet")

	return settings
}

// resolveImageURLs produces the download list and the post title, either
// from a manifest file or by asking the configured scraper about the post
// URL argument.
func resolveImageURLs(ctx context.Context, settings fetchSettings, args []string) ([]string, string, error) {
	title := settings.title

	if settings.manifest != "" {
		urls, err := fetch.ReadManifest(settings.manifest)
		if err != nil {
			return nil, "", err
		}
		return scrape.FilterImageURLs(urls), title, nil
	}

	blogID, logNo, err := scrape.ParsePostURL(args[0])
	if err != nil {
		return nil, "", err
	}
	if postSource == nil {
		return nil, "", errors.New(
			"no post scraper configured; extract the image URLs yourself and pass them with --manifest")
	}

	post, err := postSource.Fetch(ctx, blogID, logNo)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read post %s/%s: %w", blogID, logNo, err)
	}
	if title == "" {
		title = post.Title
	}
	return scrape.FilterImageURLs(post.ImageURLs), title, nil
}

func runFetchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	settings := configToFetchSettings(cfg, cmd)

	if settings.manifest == "" && len(args) == 0 {
		return errors.New("a post URL or --manifest file is required")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	// SIGINT/SIGTERM stop the download and any chained batch at the next
	// item boundary instead of killing it mid-write.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	urls, title, err := resolveImageURLs(ctx, settings, args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no image URLs to download")
	}

	destDir := filepath.Join(settings.outputRoot, utils.SanitizeTitle(title))

	var reporter progress.Reporter = progress.NoOp{}
	if !settings.quiet {
		reporter = progress.NewConsole(cmd.ErrOrStderr())
	}
	update := progress.Bind(reporter)

	// When chaining into the transform batch the download covers the first
	// half of the bar and the batch the second.
	downloadProgress := update
	if settings.chain {
		downloadProgress = func(percent int, message string) {
			update(percent*batch.DefaultBaseProgress/100, message)
		}
	}

	cfg.Fetch.SkipEdgeImages = settings.skipEdges
	downloader := cfg.NewDownloader().WithCallbacks(
		downloadProgress,
		func(message string) { slog.Debug("fetch", "message", message) },
	)

	label := fmt.Sprintf("Downloading %d image(s)", len(urls))
	if settings.chain {
		label = fmt.Sprintf("Processing %d image(s)", len(urls))
	}
	reporter.Start(label)

	saved, err := downloader.FetchAll(ctx, urls, destDir)
	if err != nil {
		reporter.Done()
		return fmt.Errorf("download interrupted: %w", err)
	}
	if len(saved) == 0 {
		reporter.Done()
		return errors.New("no images could be downloaded")
	}

	if !settings.chain {
		reporter.Done()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d of %d image(s)\n", len(saved), len(urls))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", destDir)
		return nil
	}

	processor := batch.New(cfg.NewTransformer()).
		WithQuality(cfg.Transform.JPEGQuality).
		WithKeepSources(cfg.Transform.KeepSources).
		WithCallbacks(
			update,
			func(message string) { slog.Debug("batch", "message", message) },
			func() bool { return ctx.Err() != nil },
		)

	result := processor.Process(saved, filepath.Join(destDir, "transformed"),
		cfg.TransformOptions(), batch.DefaultBaseProgress)
	reporter.Done()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d of %d image(s)\n", len(saved), len(urls))
	output, err := batch.FormatResult(result, batch.FormatText)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), output)

	if result.Cancelled {
		return errors.New("transformation cancelled")
	}
	if result.SuccessCount == 0 && result.FailCount > 0 {
		return fmt.Errorf("all %d image(s) failed to transform", result.FailCount)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("manifest", "", "file listing one image URL per line")
	fetchCmd.Flags().StringP("output", "o", "downloads", "root directory for downloaded posts")
	fetchCmd.Flags().String("title", "", "post title override for the download directory name")
	fetchCmd.Flags().Bool("transform", false, "run the transformation batch on the downloaded images")
	fetchCmd.Flags().Bool("skip-edges", false, "skip the first and last image (often banners or maps)")
	fetchCmd.Flags().BoolP("quiet", "q", false, "suppress the progress bar")

	_ = fetchCmd.MarkFlagFilename("manifest")
}
