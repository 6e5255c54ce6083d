package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// naverBlogHost identifies blog URLs across the desktop and mobile hosts.
const naverBlogHost = "blog.naver.com"

// postViewBase is the endpoint that renders a single post without the
// surrounding blog frame.
const postViewBase = "https://blog.naver.com/PostView.naver"

// ErrInvalidPostURL reports a URL that does not identify a blog post.
var ErrInvalidPostURL = errors.New("not a valid naver blog post URL")

// Post describes one blog post worth of downloadable content.
type Post struct {
	BlogID    string   `json:"blog_id"`
	LogNo     string   `json:"log_no"`
	Title     string   `json:"title"`
	ImageURLs []string `json:"image_urls"`
}

// DirName returns the filesystem-safe directory name for this post.
func (p *Post) DirName() string {
	return utils.SanitizeTitle(p.Title)
}

// Source yields the image inventory of a blog post. Implementations may
// hit the network or read prepared manifests.
type Source interface {
	Fetch(ctx context.Context, blogID, logNo string) (*Post, error)
}

// ParsePostURL extracts the blog and post identifiers from a blog URL.
// Both the path form (blog.naver.com/{blogId}/{logNo}) and the query
// form (PostView.naver?blogId=...&logNo=...) are accepted.
func ParsePostURL(rawURL string) (blogID, logNo string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing post URL: %w", err)
	}
	if !strings.Contains(parsed.Host, naverBlogHost) {
		return "", "", ErrInvalidPostURL
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], nil
	}

	query := parsed.Query()
	blogID = query.Get("blogId")
	logNo = query.Get("logNo")
	if blogID != "" && logNo != "" {
		return blogID, logNo, nil
	}

	return "", "", ErrInvalidPostURL
}

// BuildPostViewURL constructs the PostView.naver URL with the parameters
// the endpoint requires to serve the full post markup.
func BuildPostViewURL(blogID, logNo string) string {
	params := url.Values{
		"blogId":         {blogID},
		"logNo":          {logNo},
		"redirect":       {"Dlog"},
		"widgetTypeCall": {"true"},
		"noTrackingCode": {"true"},
		"directAccess":   {"false"},
	}
	return postViewBase + "?" + params.Encode()
}

// IsImageURL reports whether the URL is absolute and its path carries a
// supported image extension.
func IsImageURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	return utils.IsSupportedImage(parsed.Path)
}

// FilterImageURLs keeps the valid image URLs, deduplicated in first-seen
// order.
func FilterImageURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var filtered []string
	for _, raw := range urls {
		if !IsImageURL(raw) {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		filtered = append(filtered, raw)
	}
	return filtered
}
