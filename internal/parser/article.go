package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
)

// ExtractArticle runs boilerplate removal over a fetched document and
// returns its main text and metadata.
func ExtractArticle(body []byte, pageURL string) (*Article, error) {
	opts := trafilatura.Options{ExcludeComments: true}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		return nil, cerrors.NewExtractionError(pageURL, "article", err)
	}
	if result == nil {
		return nil, cerrors.NewExtractionError(pageURL, "article", nil)
	}

	return &Article{
		Title:       result.Metadata.Title,
		Description: result.Metadata.Description,
		Text:        strings.TrimSpace(result.ContentText),
		Author:      result.Metadata.Author,
		Sitename:    result.Metadata.Sitename,
		Language:    result.Metadata.Language,
	}, nil
}
