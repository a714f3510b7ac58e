package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// decodeJSON reads a JSON body into v, replying 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

// decodeScrape reads a ScrapeRequest and requires its url.
func decodeScrape(w http.ResponseWriter, r *http.Request) (crawler.ScrapeRequest, bool) {
	var req crawler.ScrapeRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "Missing URL", "url is required")
		return req, false
	}
	return req, true
}

// scrapeOp adapts one Scraper operation to a handler.
func (s *Server) scrapeOp(label string, run func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeScrape(w, r)
		if !ok {
			return
		}
		data, err := run(r.Context(), req)
		if err != nil {
			s.fail(w, r, label, err)
			return
		}
		writeData(w, http.StatusOK, data)
	}
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Scraping error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.Scrape(ctx, req)
	})(w, r)
}

func (s *Server) handleScrapeStatic(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Scraping error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.ScrapeStatic(ctx, req.URL, req.UserAgent)
	})(w, r)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Extraction error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.Select(ctx, req)
	})(w, r)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Rendering error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.Render(ctx, req)
	})(w, r)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Metadata extraction error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.Metadata(ctx, req)
	})(w, r)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	s.scrapeOp("Link extraction error", func(ctx context.Context, req crawler.ScrapeRequest) (interface{}, error) {
		return s.scraper.Links(ctx, req)
	})(w, r)
}

// screenshotData is the JSON form of a screenshot.
type screenshotData struct {
	ImageBase64 string                   `json:"image_base64"`
	Format      browser.ScreenshotFormat `json:"format"`
	Width       int                      `json:"width"`
	Height      int                      `json:"height"`
	FullPage    bool                     `json:"full_page"`
	URL         crawler.URLInfo          `json:"url"`
}

// handleScreenshot returns the image base64 encoded, or as the raw image
// with ?raw=true.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScrape(w, r)
	if !ok {
		return
	}
	shot, err := s.scraper.Screenshot(r.Context(), req)
	if err != nil {
		s.fail(w, r, "Screenshot error", err)
		return
	}

	if r.URL.Query().Get("raw") == "true" {
		w.Header().Set("Content-Type", fmt.Sprintf("image/%s", shot.Format))
		w.WriteHeader(http.StatusOK)
		w.Write(shot.Image)
		return
	}
	writeData(w, http.StatusOK, screenshotData{
		ImageBase64: base64.StdEncoding.EncodeToString(shot.Image),
		Format:      shot.Format,
		Width:       shot.Width,
		Height:      shot.Height,
		FullPage:    shot.FullPage,
		URL:         shot.URL,
	})
}
