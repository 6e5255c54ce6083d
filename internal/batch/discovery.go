package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// Discover expands files and directories into the ordered source list a
// batch will process. Directories contribute their supported images in
// lexical walk order so batches are reproducible; explicitly named files
// must be supported images. Include and exclude patterns match against
// base names, exclusion winning.
func Discover(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var sources []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
			if err != nil {
				return nil, err
			}
			sources = append(sources, files...)
			continue
		}

		if !utils.IsSupportedImage(arg) {
			return nil, fmt.Errorf("unsupported image format: %s", arg)
		}
		if shouldIncludeFile(arg, includePatterns, excludePatterns) {
			sources = append(sources, arg)
		}
	}

	return sources, nil
}

// discoverInDirectory collects supported images under dir, descending
// into subdirectories only when recursive is set.
func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if utils.IsSupportedImage(path) && shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, path)
		}

		return nil
	}

	if err := filepath.Walk(dir, walkFn); err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// shouldIncludeFile applies include/exclude patterns to a path's base name.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
