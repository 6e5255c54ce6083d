package batch

import (
	"os"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// Candidates returns the composition background pool for the item at
// currentPath: every other entry of sourcePaths that resolves to a
// different file identity and still exists on disk. The pool is computed
// fresh against present filesystem state each call, so it shrinks as
// earlier items in the same batch delete their sources.
func Candidates(sourcePaths []string, currentPath string) []string {
	current := utils.ResolvePath(currentPath)
	candidates := make([]string, 0, len(sourcePaths))
	for _, path := range sourcePaths {
		if utils.ResolvePath(path) == current {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		candidates = append(candidates, path)
	}
	return candidates
}
