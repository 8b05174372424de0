package offcache

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestClass is the semantic class of an incoming request.
// It determines which caching strategy handles the request.
type RequestClass string

const (
	// ClassStreaming requests are never cached.
	ClassStreaming RequestClass = "streaming"
	// ClassImage requests are served cache-first.
	ClassImage RequestClass = "image"
	// ClassDocument requests are served network-first.
	ClassDocument RequestClass = "document"
	// ClassOther requests are served with opportunistic caching.
	ClassOther RequestClass = "other"
)

// imageExtensions are the file extensions classified as images.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp"}

// Classifier maps a request URL and method to a RequestClass.
// It is pure configuration data: no state, no I/O.
type Classifier struct {
	// streaming entries are matched by containment against the URL host and
	// path. A streaming match wins over every other rule, so live streams are
	// never cached no matter what their URL looks like.
	streaming []string
	// imageRefs are extra URL fragments to classify as images in addition to
	// the well-known extensions (e.g. station artwork served without one).
	imageRefs []string
}

func NewClassifier(streaming, imageRefs []string) Classifier {
	return Classifier{
		streaming: streaming,
		imageRefs: imageRefs,
	}
}

// Classify returns the RequestClass for the given URL and method.
// It is deterministic and total: every input maps to exactly one class.
func (c Classifier) Classify(u *url.URL, method string) RequestClass {
	for _, domain := range c.streaming {
		if strings.Contains(u.Host, domain) || strings.Contains(u.Path, domain) {
			return ClassStreaming
		}
	}

	path := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return ClassImage
		}
	}
	for _, ref := range c.imageRefs {
		if strings.Contains(u.String(), ref) {
			return ClassImage
		}
	}

	if method == http.MethodGet &&
		(u.Path == "/" || strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".json")) {
		return ClassDocument
	}

	return ClassOther
}
