package scraper

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

// maxBodyChars caps extracted body text; pages longer than this carry no
// extra signal for embedding or context assembly.
const maxBodyChars = 5000

var (
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagPattern     = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern   = regexp.MustCompile(`\s+`)
	titlePattern   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	mainPattern    = regexp.MustCompile(`(?is)<main\b[^>]*>(.*)</main>`)
	articlePattern = regexp.MustCompile(`(?is)<article\b[^>]*>(.*?)</article>`)
	bodyPattern    = regexp.MustCompile(`(?is)<body\b[^>]*>(.*)</body>`)
	anchorPattern  = regexp.MustCompile(`(?is)<a\b[^>]*\bhref\s*=\s*["']([^"']+)["']`)
	imgPattern     = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	srcPattern     = regexp.MustCompile(`(?i)\bsrc\s*=\s*["']([^"']+)["']`)
	widthPattern   = regexp.MustCompile(`(?i)\bwidth\s*=\s*["']?(\d+)`)
	heightPattern  = regexp.MustCompile(`(?i)\bheight\s*=\s*["']?(\d+)`)
)

// noisePatterns remove the markup that never carries page content.
var noisePatterns = func() []*regexp.Regexp {
	tags := []string{
		"script", "style", "noscript", "nav", "header", "footer",
		"aside", "form", "svg", "iframe",
	}
	out := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		out = append(out, regexp.MustCompile(`(?is)<`+tag+`\b[^>]*>.*?</`+tag+`\s*>`))
	}
	return out
}()

// metaPatterns matches a <meta> tag for the given name/property key in
// either attribute order.
func metaPatterns(key string) [2]*regexp.Regexp {
	k := regexp.QuoteMeta(key)
	return [2]*regexp.Regexp{
		regexp.MustCompile(`(?is)<meta\b[^>]*\b(?:name|property)\s*=\s*["']` + k + `["'][^>]*\bcontent\s*=\s*["']([^"']*)["']`),
		regexp.MustCompile(`(?is)<meta\b[^>]*\bcontent\s*=\s*["']([^"']*)["'][^>]*\b(?:name|property)\s*=\s*["']` + k + `["']`),
	}
}

var metaLookups = func() map[string][2]*regexp.Regexp {
	m := make(map[string][2]*regexp.Regexp)
	for _, k := range []string{"description", "og:title", "og:description", "og:image", "twitter:image"} {
		m[k] = metaPatterns(k)
	}
	return m
}()

// ExtractPage parses one fetched HTML document into a ScrapedPage. Metadata
// comes from the document head; body text from the main content region with
// navigation chrome stripped.
func ExtractPage(pageURL string, raw []byte) domain.ScrapedPage {
	doc := string(raw)
	return domain.ScrapedPage{
		URL:          pageURL,
		Title:        extractTitle(doc, pageURL),
		Description:  extractDescription(doc),
		Body:         extractText(doc),
		ThumbnailURL: extractThumbnail(doc, pageURL),
		FetchedAt:    time.Now().UTC(),
	}
}

func extractTitle(doc, pageURL string) string {
	if m := titlePattern.FindStringSubmatch(doc); m != nil {
		if t := collapse(html.UnescapeString(m[1])); t != "" {
			return t
		}
	}
	if t := metaContent(doc, "og:title"); t != "" {
		return t
	}
	return titleFromPath(pageURL)
}

func extractDescription(doc string) string {
	if d := metaContent(doc, "description"); d != "" {
		return d
	}
	return metaContent(doc, "og:description")
}

// extractText pulls readable text out of the document: prefer the <main>
// or <article> region, drop scripts and chrome, then flatten the markup.
func extractText(doc string) string {
	region := doc
	if m := mainPattern.FindStringSubmatch(doc); m != nil {
		region = m[1]
	} else if m := articlePattern.FindStringSubmatch(doc); m != nil {
		region = m[1]
	} else if m := bodyPattern.FindStringSubmatch(doc); m != nil {
		region = m[1]
	}

	region = commentPattern.ReplaceAllString(region, " ")
	for _, p := range noisePatterns {
		region = p.ReplaceAllString(region, " ")
	}
	text := tagPattern.ReplaceAllString(region, " ")
	text = collapse(html.UnescapeString(text))

	if r := []rune(text); len(r) > maxBodyChars {
		text = string(r[:maxBodyChars])
	}
	return text
}

// extractThumbnail picks a representative image: social-card metadata
// first, then the first content-sized <img> on the page.
func extractThumbnail(doc, pageURL string) string {
	if img := metaContent(doc, "og:image"); img != "" {
		return resolveURL(pageURL, img)
	}
	if img := metaContent(doc, "twitter:image"); img != "" {
		return resolveURL(pageURL, img)
	}

	for _, tag := range imgPattern.FindAllString(doc, -1) {
		src := firstSubmatch(srcPattern, tag)
		if src == "" {
			continue
		}
		lower := strings.ToLower(src)
		if strings.Contains(lower, "icon") || strings.Contains(lower, "logo") ||
			strings.Contains(lower, "avatar") || strings.Contains(lower, "button") {
			continue
		}
		if !dimensionOK(tag, widthPattern) || !dimensionOK(tag, heightPattern) {
			continue
		}
		return resolveURL(pageURL, src)
	}
	return ""
}

// dimensionOK accepts an image whose declared dimension exceeds icon size,
// or that declares none at all.
func dimensionOK(tag string, p *regexp.Regexp) bool {
	m := firstSubmatch(p, tag)
	if m == "" {
		return true
	}
	n, err := strconv.Atoi(m)
	return err == nil && n > 200
}

// ExtractLinks returns every absolute link on the page, fragments stripped,
// in document order without duplicates.
func ExtractLinks(pageURL string, raw []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	links := fn.FilterMap(anchorPattern.FindAllStringSubmatch(string(raw), -1), func(m []string) (string, bool) {
		href := html.UnescapeString(m[1])
		if href == "" || strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return "", false
		}
		u, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		resolved := base.ResolveReference(u)
		resolved.Fragment = ""
		s := resolved.String()
		return s, s != ""
	})
	return fn.Unique(links)
}

// caseStudyPaths mark a URL as a customer story regardless of its text.
var caseStudyPaths = []string{"/case-stud", "/customer-stor", "/success-stor"}

// Classify assigns a content category from the page URL and its opening
// text.
func Classify(page domain.ScrapedPage) domain.Category {
	if u, err := url.Parse(page.URL); err == nil {
		lower := strings.ToLower(u.Path)
		for _, p := range caseStudyPaths {
			if strings.Contains(lower, p) {
				return domain.CategoryCaseStudy
			}
		}
	}

	probe := strings.ToLower(page.Title)
	if r := []rune(page.Body); len(r) > 500 {
		probe += " " + strings.ToLower(string(r[:500]))
	} else {
		probe += " " + strings.ToLower(page.Body)
	}
	if strings.Contains(probe, "case study") || strings.Contains(probe, "success story") {
		return domain.CategoryCaseStudy
	}
	return domain.CategoryArticle
}

func metaContent(doc, key string) string {
	patterns, ok := metaLookups[key]
	if !ok {
		patterns = metaPatterns(key)
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(doc); m != nil {
			if v := collapse(html.UnescapeString(m[1])); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstSubmatch(p *regexp.Regexp, s string) string {
	if m := p.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func resolveURL(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func collapse(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// titleFromPath derives a title from the last URL path segment when the
// page supplies none.
func titleFromPath(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	segment := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if segment == "" {
		return u.Host
	}
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	words := strings.Fields(segment)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
