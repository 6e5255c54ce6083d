package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/config"
	"github.com/bis0908/naver-blog-image-downloader/internal/progress"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
	"github.com/spf13/cobra"
)

// transformCmd represents the transform command for local image batches.
var transformCmd = &cobra.Command{
	Use:   "transform [files or directories...]",
	Short: "Apply randomized transformations to local images",
	Long: `Transform local images with randomized resize, outline, rotation and
noise steps, compositing each one over other images from the same batch.
Source files are deleted as each transformation succeeds; use
--keep-sources for a dry run that leaves them in place.

Supported formats: JPEG, PNG, GIF, BMP, WebP

Examples:
  nbid transform ./downloads/my-post --output ./out
  nbid transform a.jpg b.png --output ./out --seed 42
  nbid transform ./photos --recursive --keep-sources --format json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runTransformCommand,
}

// transformSettings holds the effective transform run configuration after
// merging config file values with CLI flag overrides.
type transformSettings struct {
	outputDir    string
	options      transform.Options
	quality      int
	keepSources  bool
	seed         uint64
	baseProgress int
	recursive    bool
	include      []string
	exclude      []string
	format       string
	quiet        bool
}

// configToTransformSettings maps centralized configuration to the transform
// run settings. CLI flags override config file values.
func configToTransformSettings(cfg *config.Config, cmd *cobra.Command) transformSettings {
	settings := transformSettings{
		options:      cfg.TransformOptions(),
		quality:      cfg.Transform.JPEGQuality,
		keepSources:  cfg.Transform.KeepSources,
		seed:         cfg.Transform.Seed,
		baseProgress: cfg.Batch.BaseProgress,
	}

	// The negation flags switch individual transformation steps off.
	if cmd.Flags().Changed("no-resize") {
		noResize, _ := cmd.Flags().GetBool("no-resize")
		settings.options.RandomSize = !noResize
	}
	if cmd.Flags().Changed("no-rotate") {
		noRotate, _ := cmd.Flags().GetBool("no-rotate")
		settings.options.RandomAngle = !noRotate
	}
	if cmd.Flags().Changed("no-noise") {
		noNoise, _ := cmd.Flags().GetBool("no-noise")
		settings.options.RandomPixel = !noNoise
	}
	if cmd.Flags().Changed("no-outline") {
		noOutline, _ := cmd.Flags().GetBool("no-outline")
		settings.options.AddOutline = !noOutline
	}

	if cmd.Flags().Changed("quality") {
		settings.quality, _ = cmd.Flags().GetInt("quality")
	}
	if cmd.Flags().Changed("keep-sources") {
		settings.keepSources, _ = cmd.Flags().GetBool("keep-sources")
	}
	if cmd.Flags().Changed("seed") {
		settings.seed, _ = cmd.Flags().GetUint64("seed")
	}
	if cmd.Flags().Changed("base-progress") {
		settings.baseProgress, _ = cmd.Flags().GetInt("base-progress")
	}

	// File discovery and output settings are CLI-only.
	settings.outputDir, _ = cmd.Flags().GetString("output")
	settings.recursive, _ = cmd.Flags().GetBool("recursive")
	settings.include, _ = cmd.Flags().GetStringSlice("include")
	settings.exclude, _ = cmd.Flags().GetStringSlice("exclude")
	settings.format, _ = cmd.Flags().GetString("format")
	settings.quiet, _ = cmd.Flags().GetBool("quiet")

	return settings
}

func runTransformCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	settings := configToTransformSettings(cfg, cmd)

	if !batch.ValidFormat(settings.format) {
		return fmt.Errorf("invalid output format: %s (must be %s or %s)",
			settings.format, batch.FormatText, batch.FormatJSON)
	}
	if settings.quality < 1 || settings.quality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", settings.quality)
	}

	files, err := batch.Discover(args, settings.recursive, settings.include, settings.exclude)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported images found in %s", strings.Join(args, ", "))
	}

	transformer := transform.New()
	if settings.seed != 0 {
		transformer = transform.NewSeeded(settings.seed)
	}

	processor := batch.New(transformer).
		WithQuality(settings.quality).
		WithKeepSources(settings.keepSources)

	// A console progress bar would interleave with JSON output, so it only
	// runs for text format.
	var reporter progress.Reporter = progress.NoOp{}
	if !settings.quiet && settings.format == batch.FormatText {
		reporter = progress.NewConsole(cmd.ErrOrStderr())
	}
	processor = processor.WithCallbacks(
		progress.Bind(reporter),
		func(message string) { slog.Debug("batch", "message", message) },
		nil,
	)

	// SIGINT/SIGTERM stop the batch at the next item boundary instead of
	// killing it mid-write.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	finished := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			processor.RequestCancel()
		case <-finished:
		}
	}()

	reporter.Start(fmt.Sprintf("Transforming %d image(s)", len(files)))
	result := processor.Process(files, settings.outputDir, settings.options, settings.baseProgress)
	reporter.Done()
	close(finished)

	output, err := batch.FormatResult(result, settings.format)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), output)

	if result.SuccessCount == 0 && result.FailCount > 0 {
		return fmt.Errorf("all %d image(s) failed to transform", result.FailCount)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(transformCmd)

	// Transformation step flags
	transformCmd.Flags().Bool("no-resize", false, "disable the randomized resize step")
	transformCmd.Flags().Bool("no-rotate", false, "disable the randomized rotation step")
	transformCmd.Flags().Bool("no-noise", false, "disable the noise pixel step")
	transformCmd.Flags().Bool("no-outline", false, "disable the random-color outline step")
	transformCmd.Flags().Uint64("seed", 0, "random seed for reproducible transformations (0 = random)")
	transformCmd.Flags().Int("quality", transform.DefaultJPEGQuality, "JPEG output quality (1-100)")

	// Batch behavior flags
	transformCmd.Flags().Bool("keep-sources", false, "keep source files instead of deleting them after transform")
	transformCmd.Flags().Int("base-progress", 0, "progress percentage to start from (for chained pipelines)")

	// File discovery flags
	transformCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	transformCmd.Flags().StringSlice("include", []string{}, "file patterns to include")
	transformCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	// Output flags
	transformCmd.Flags().StringP("output", "o", "transformed", "output directory for transformed images")
	transformCmd.Flags().StringP("format", "f", batch.FormatText, "output format: text, json")
	transformCmd.Flags().BoolP("quiet", "q", false, "suppress the progress bar")
}
