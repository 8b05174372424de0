package offcache

import (
	"net/url"
	"testing"
)

func TestClassify(t *testing.T) {
	classifier := NewClassifier(
		[]string{"stream.example.com", "/live/"},
		[]string{"/station-artwork"},
	)

	tests := []struct {
		name   string
		url    string
		method string
		want   RequestClass
	}{
		{"root document", "https://example.com/", "GET", ClassDocument},
		{"html document", "https://example.com/about.html", "GET", ClassDocument},
		{"json document", "https://example.com/api/schedule.json", "GET", ClassDocument},
		{"uppercase html is still a document", "https://example.com/ABOUT.HTML", "GET", ClassDocument},
		{"post to document path is other", "https://example.com/about.html", "POST", ClassOther},
		{"png image", "https://example.com/logo.png", "GET", ClassImage},
		{"jpeg image", "https://example.com/photo.JPEG", "GET", ClassImage},
		{"webp image", "https://example.com/banner.webp", "GET", ClassImage},
		{"configured image reference", "https://cdn.example.com/station-artwork?id=3", "GET", ClassImage},
		{"streaming host", "https://stream.example.com/now", "GET", ClassStreaming},
		{"streaming wins over image extension", "https://stream.example.com/cover.png", "GET", ClassStreaming},
		{"streaming wins over document extension", "https://stream.example.com/index.html", "GET", ClassStreaming},
		{"streaming path fragment", "https://example.com/live/main", "GET", ClassStreaming},
		{"plain api call", "https://example.com/api/data", "GET", ClassOther},
		{"extensionless path", "https://example.com/contact", "GET", ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if got := classifier.Classify(u, tt.method); got != tt.want {
				t.Errorf("Classify(%s %s) = %s, want %s", tt.method, tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifyWithoutStreamingList(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	u, _ := url.Parse("https://example.com/song.png")
	if got := classifier.Classify(u, "GET"); got != ClassImage {
		t.Errorf("Classify = %s, want %s", got, ClassImage)
	}
}
