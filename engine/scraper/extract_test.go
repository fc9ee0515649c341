package scraper

import (
	"strings"
	"testing"

	"github.com/curbside-labs/contenthub/engine/domain"
)

const guideHTML = `<!DOCTYPE html>
<html><head>
<title>Microtransit Planning Guide | ExampleCo</title>
<meta name="description" content="How cities plan microtransit zones.">
<meta property="og:image" content="/images/guide-cover.jpg">
</head>
<body>
<nav><a href="/">Home</a> NAVBAR</nav>
<main>
<h1>Microtransit Planning Guide</h1>
<p>Cities use &amp; rely on flexible routing.</p>
<script>console.log("tracking")</script>
</main>
<footer>FOOTER TEXT</footer>
</body></html>`

func TestExtractPage(t *testing.T) {
	page := ExtractPage("https://example.com/blog/guide/", []byte(guideHTML))

	if page.Title != "Microtransit Planning Guide | ExampleCo" {
		t.Errorf("title = %q", page.Title)
	}
	if page.Description != "How cities plan microtransit zones." {
		t.Errorf("description = %q", page.Description)
	}
	want := "Microtransit Planning Guide Cities use & rely on flexible routing."
	if page.Body != want {
		t.Errorf("body = %q, want %q", page.Body, want)
	}
	if strings.Contains(page.Body, "NAVBAR") || strings.Contains(page.Body, "console.log") {
		t.Errorf("body carries chrome or script text: %q", page.Body)
	}
	if page.ThumbnailURL != "https://example.com/images/guide-cover.jpg" {
		t.Errorf("thumbnail = %q", page.ThumbnailURL)
	}
	if page.FetchedAt.IsZero() {
		t.Error("fetched_at not set")
	}
}

func TestExtractPage_MetaFallbacks(t *testing.T) {
	doc := `<html><head>
<meta property="og:title" content="Fallback Title">
<meta property="og:description" content="OG description text.">
<meta name="twitter:image" content="https://cdn.example.com/card.png">
</head><body><p>Short body.</p></body></html>`

	page := ExtractPage("https://example.com/resources/x/", []byte(doc))
	if page.Title != "Fallback Title" {
		t.Errorf("title = %q, want og:title fallback", page.Title)
	}
	if page.Description != "OG description text." {
		t.Errorf("description = %q, want og:description fallback", page.Description)
	}
	if page.ThumbnailURL != "https://cdn.example.com/card.png" {
		t.Errorf("thumbnail = %q, want twitter:image fallback", page.ThumbnailURL)
	}
}

func TestExtractPage_TitleFromPath(t *testing.T) {
	doc := `<html><body><p>hello</p></body></html>`
	page := ExtractPage("https://example.com/blog/microtransit-planning-guide/", []byte(doc))
	if page.Title != "Microtransit Planning Guide" {
		t.Errorf("title = %q", page.Title)
	}
}

func TestExtractText_Truncates(t *testing.T) {
	long := strings.Repeat("word ", 1200)
	doc := "<html><body><main>" + long + "</main></body></html>"
	page := ExtractPage("https://example.com/blog/long/", []byte(doc))
	if got := len([]rune(page.Body)); got != maxBodyChars {
		t.Errorf("body length = %d, want %d", got, maxBodyChars)
	}
}

func TestExtractThumbnail_SkipsIconsAndSmallImages(t *testing.T) {
	doc := `<html><body>
<img src="/img/site-logo.png" width="400" height="400">
<img src="/img/tiny.jpg" width="64" height="64">
<img src="/img/hero.jpg" width="800" height="450">
</body></html>`

	page := ExtractPage("https://example.com/blog/p/", []byte(doc))
	if page.ThumbnailURL != "https://example.com/img/hero.jpg" {
		t.Errorf("thumbnail = %q, want hero image", page.ThumbnailURL)
	}
}

func TestExtractThumbnail_AcceptsUnsizedImage(t *testing.T) {
	doc := `<html><body><img src="/img/banner.jpg"></body></html>`
	page := ExtractPage("https://example.com/blog/p/", []byte(doc))
	if page.ThumbnailURL != "https://example.com/img/banner.jpg" {
		t.Errorf("thumbnail = %q", page.ThumbnailURL)
	}
}

func TestExtractLinks(t *testing.T) {
	doc := `<html><body>
<a href="/blog/post/">P</a>
<a href="https://example.com/about/#team">A</a>
<a href="mailto:x@example.com">M</a>
<a href="javascript:void(0)">J</a>
<a href="/blog/post/">Dup</a>
<a href="../solutions/">Rel</a>
</body></html>`

	got := ExtractLinks("https://example.com/resources/guides/", []byte(doc))
	want := []string{
		"https://example.com/blog/post/",
		"https://example.com/about/",
		"https://example.com/resources/solutions/",
	}
	if len(got) != len(want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		page domain.ScrapedPage
		want domain.Category
	}{
		{
			name: "case study url",
			page: domain.ScrapedPage{URL: "https://example.com/case-studies/metro-launch/", Body: "plain text"},
			want: domain.CategoryCaseStudy,
		},
		{
			name: "success story in body",
			page: domain.ScrapedPage{URL: "https://example.com/blog/x/", Body: "A success story from our riders."},
			want: domain.CategoryCaseStudy,
		},
		{
			name: "case study in title",
			page: domain.ScrapedPage{URL: "https://example.com/blog/x/", Title: "Metro Case Study"},
			want: domain.CategoryCaseStudy,
		},
		{
			name: "cue past the opening text",
			page: domain.ScrapedPage{URL: "https://example.com/blog/x/", Body: strings.Repeat("x ", 300) + "case study"},
			want: domain.CategoryArticle,
		},
		{
			name: "plain article",
			page: domain.ScrapedPage{URL: "https://example.com/blog/planning/", Title: "Planning", Body: "How to plan."},
			want: domain.CategoryArticle,
		},
	}
	for _, tc := range cases {
		if got := Classify(tc.page); got != tc.want {
			t.Errorf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
}
