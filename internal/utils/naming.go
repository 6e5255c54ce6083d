package utils

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultPostTitle is used when a blog post title is missing or sanitizes to nothing.
const DefaultPostTitle = "네이버블로그_포스팅"

// transformedSuffix marks derivative images produced by the batch pipeline.
const transformedSuffix = "_transformed"

const maxTitleRunes = 100

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	illegalRe     = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// SanitizeTitle turns a blog post title into a safe directory or file name.
// The title is NFC-normalized so composed and decomposed Hangul collapse to
// the same form, HTML comments and characters invalid on common filesystems
// are stripped, whitespace runs become single underscores, and the result is
// capped at 100 runes. An empty result falls back to DefaultPostTitle.
func SanitizeTitle(title string) string {
	s := norm.NFC.String(title)
	s = htmlCommentRe.ReplaceAllString(s, "")
	s = illegalRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")

	if s == "" {
		return DefaultPostTitle
	}

	runes := []rune(s)
	if len(runes) > maxTitleRunes {
		s = strings.TrimRight(string(runes[:maxTitleRunes]), "_")
	}
	return s
}

// TransformedName derives the output file name for a transformed source image:
// the source stem with a "_transformed" marker and the original extension.
// Saving may still coerce the extension for formats it cannot encode.
func TransformedName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + transformedSuffix + ext
}
