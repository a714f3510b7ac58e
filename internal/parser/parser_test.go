package parser

import (
	"strings"
	"testing"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>
		Example   Domain
	</title>
	<meta name="description" content="An example page">
	<meta property="og:title" content="Example OG">
	<meta property="og:description" content="OG description">
	<meta name="twitter:card" content="summary">
	<link rel="canonical" href="/canonical">
	<link rel="shortcut icon" href="/favicon.ico">
	<script>var x = 1;</script>
</head>
<body>
	<h1>Welcome</h1>
	<a href="/about" title="About us" class="nav">About</a>
	<a href="https://example.com/contact" target="_blank">Contact</a>
	<a href="https://other.org/page" rel="nofollow">Other</a>
	<a href="javascript:void(0)">JS</a>
	<a href="mailto:info@example.com">Mail</a>
	<a href="tel:+123">Call</a>
	<a>No href</a>
	<img src="/logo.png">
	<img src="/hero.png">
	<form action="/search"><input name="q"></form>
	<p class="item">One</p>
	<p class="item" data-id="2">Two</p>
	<script src="/app.js"></script>
</body>
</html>`

func mustParse(t *testing.T, base, html string) *Document {
	t.Helper()
	p, err := NewHTMLParser(base)
	if err != nil {
		t.Fatalf("NewHTMLParser() error = %v", err)
	}
	doc, err := p.Parse(html)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

// =============================================================================
// HTMLParser Tests
// =============================================================================

func TestNewHTMLParser(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid URL", "https://example.com", false},
		{"URL with path", "https://example.com/path/to/page", false},
		{"invalid URL", "://invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewHTMLParser(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTMLParser() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && p == nil {
				t.Error("NewHTMLParser() returned nil parser")
			}
		})
	}
}

func TestDocument_Summary(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)
	s := doc.Summary()

	if s.Title != "Example Domain" {
		t.Errorf("Title = %q, want %q", s.Title, "Example Domain")
	}
	if s.Description != "An example page" {
		t.Errorf("Description = %q", s.Description)
	}

	want := ElementCounts{Links: 7, Images: 2, Forms: 1, Scripts: 2}
	got := s.Counts
	if got.Links != want.Links || got.Images != want.Images || got.Forms != want.Forms || got.Scripts != want.Scripts {
		t.Errorf("Counts = %+v, want %+v", got, want)
	}
	if got.Total <= got.Links+got.Images+got.Forms+got.Scripts {
		t.Errorf("Total = %d, should count every element", got.Total)
	}
}

func TestDocument_DescriptionFallback(t *testing.T) {
	tests := []struct {
		name string
		head string
		want string
	}{
		{"meta description", `<meta name="description" content="plain">`, "plain"},
		{"og fallback", `<meta property="og:description" content="from og">`, "from og"},
		{"empty description falls back", `<meta name="description" content=""><meta property="og:description" content="og">`, "og"},
		{"none", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, "https://example.com", "<html><head>"+tt.head+"</head><body></body></html>")
			if got := doc.Description(); got != tt.want {
				t.Errorf("Description() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocument_Hrefs(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)
	hrefs := doc.Hrefs()

	if len(hrefs) != 6 {
		t.Fatalf("len(Hrefs) = %d, want 6: %v", len(hrefs), hrefs)
	}
	if hrefs[0] != "/about" {
		t.Errorf("Hrefs()[0] = %q, want raw relative href", hrefs[0])
	}
}

func TestDocument_Text(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)
	text := doc.Text()

	if !strings.Contains(text, "Welcome") {
		t.Errorf("Text() missing body content: %q", text)
	}
	if strings.Contains(text, "var x") {
		t.Error("Text() should not include scripts")
	}
}

// =============================================================================
// Links Tests
// =============================================================================

func TestDocument_Links(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)
	links := doc.Links()

	if len(links) != 3 {
		t.Fatalf("len(Links) = %d, want 3: %+v", len(links), links)
	}

	about := links[0]
	if about.URL != "https://example.com/about" || about.Text != "About" || !about.IsInternal {
		t.Errorf("about link = %+v", about)
	}
	if about.Attributes["title"] != "About us" || about.Attributes["class"] != "nav" {
		t.Errorf("about attributes = %v", about.Attributes)
	}
	if _, ok := about.Attributes["target"]; ok {
		t.Error("empty attributes should be omitted")
	}

	if !links[1].IsInternal || links[1].Attributes["target"] != "_blank" {
		t.Errorf("contact link = %+v", links[1])
	}
	if links[2].IsInternal || links[2].Attributes["rel"] != "nofollow" {
		t.Errorf("external link = %+v", links[2])
	}
}

// =============================================================================
// Metadata Tests
// =============================================================================

func TestDocument_Metadata(t *testing.T) {
	doc := mustParse(t, "https://example.com/page", samplePage)
	md := doc.Metadata()

	if md.Basic.Title != "Example Domain" {
		t.Errorf("Basic.Title = %q", md.Basic.Title)
	}
	if md.Basic.Description != "An example page" {
		t.Errorf("Basic.Description = %q", md.Basic.Description)
	}
	if md.Basic.CanonicalURL != "https://example.com/canonical" {
		t.Errorf("CanonicalURL = %q", md.Basic.CanonicalURL)
	}
	if md.Basic.FaviconURL != "https://example.com/favicon.ico" {
		t.Errorf("FaviconURL = %q", md.Basic.FaviconURL)
	}
	if md.OpenGraph["title"] != "Example OG" || md.OpenGraph["description"] != "OG description" {
		t.Errorf("OpenGraph = %v", md.OpenGraph)
	}
	if md.TwitterCard["card"] != "summary" {
		t.Errorf("TwitterCard = %v", md.TwitterCard)
	}
	if md.MetaTags["og:title"] != "Example OG" {
		t.Errorf("MetaTags = %v", md.MetaTags)
	}
}

// =============================================================================
// Select Tests
// =============================================================================

func TestDocument_Select(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)

	tests := []struct {
		name      string
		selector  string
		attribute string
		multiple  bool
		want      []string
		wantType  cerrors.ErrorType
	}{
		{name: "first text", selector: "p.item", want: []string{"One"}},
		{name: "all text", selector: "p.item", multiple: true, want: []string{"One", "Two"}},
		{name: "attribute", selector: "a.nav", attribute: "href", want: []string{"/about"}},
		{name: "missing attribute", selector: "p.item", attribute: "data-id", multiple: true, want: []string{"", "2"}},
		{name: "not found", selector: "div.missing", wantType: cerrors.NotFound},
		{name: "empty selector", selector: " ", wantType: cerrors.Policy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc.Select(tt.selector, tt.attribute, tt.multiple)
			if tt.want == nil {
				if cerrors.GetErrorType(err) != tt.wantType {
					t.Fatalf("Select() error = %v, want type %v", err, tt.wantType)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocument_SelectNotFoundStatus(t *testing.T) {
	doc := mustParse(t, "https://example.com/", samplePage)
	_, err := doc.Select("#nope", "", false)
	if cerrors.GetStatusCode(err) != 404 {
		t.Errorf("status = %d, want 404", cerrors.GetStatusCode(err))
	}
}

// =============================================================================
// Framework Tests
// =============================================================================

func TestDocument_Frameworks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"static page", `<div><p>hello</p></div>`, ""},
		{"react root", `<div id="root" data-reactroot=""></div>`, "react"},
		{"next implies react", `<div id="__next"></div><script id="__NEXT_DATA__"></script>`, "nextjs,react"},
		{"nuxt implies vue", `<div id="__nuxt"></div>`, "nuxt,vue"},
		{"vue scoped attribute", `<div data-v-7ba5bd90 class="card"></div>`, "vue"},
		{"angular", `<app-root ng-version="17.0.0"></app-root>`, "angular"},
		{"angularjs", `<body ng-app="shop"><div ng-view></div></body>`, "angularjs"},
		{"ember", `<div id="ember12" class="ember-view"></div>`, "ember"},
		{"svelte", `<main class="svelte-1xyz"></main>`, "svelte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, "https://example.com/", "<html><body>"+tt.body+"</body></html>")
			if got := strings.Join(doc.Frameworks(), ","); got != tt.want {
				t.Errorf("Frameworks() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Article Tests
// =============================================================================

func TestExtractArticle(t *testing.T) {
	paragraph := "The harbour town keeps its fishing fleet busy through the winter months, " +
		"and the market opens every morning before sunrise so that restaurants across the " +
		"region can buy the freshest catch available anywhere along the northern coast."

	var b strings.Builder
	b.WriteString(`<html><head><title>Harbour Life</title>`)
	b.WriteString(`<meta name="description" content="A day at the harbour"></head><body>`)
	b.WriteString(`<nav><a href="/">Home</a><a href="/news">News</a></nav><article><h1>Harbour Life</h1>`)
	for i := 0; i < 6; i++ {
		b.WriteString("<p>" + paragraph + "</p>")
	}
	b.WriteString(`</article><footer>Copyright</footer></body></html>`)

	article, err := ExtractArticle([]byte(b.String()), "https://news.example.com/harbour")
	if err != nil {
		t.Fatalf("ExtractArticle() error = %v", err)
	}
	if !strings.Contains(article.Text, "fishing fleet") {
		t.Errorf("Text missing article body: %q", article.Text)
	}
	if article.Title != "Harbour Life" {
		t.Errorf("Title = %q", article.Title)
	}
	if article.Description != "A day at the harbour" {
		t.Errorf("Description = %q", article.Description)
	}
}
