package api

import (
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// The settings and catalog endpoints reply with the bare object, without
// the success envelope.

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Scraper())
}

// handleUpdateSettings merges the JSON body over the current settings.
// Fields left out keep their values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	view := s.settings.Scraper()
	if !decodeJSON(w, r, &view) {
		return
	}
	s.applySettings(w, view)
}

func (s *Server) handleGetSettingsYAML(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(s.settings.Scraper())
	if err != nil {
		s.fail(w, r, "Error getting settings", err)
		return
	}
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleUpdateSettingsYAML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		writeError(w, http.StatusBadRequest, "YAML parsing error", err.Error())
		return
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		writeError(w, http.StatusBadRequest, "Invalid YAML format", "settings must be a mapping")
		return
	}

	view := s.settings.Scraper()
	if err := node.Decode(&view); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
		return
	}
	s.applySettings(w, view)
}

func (s *Server) applySettings(w http.ResponseWriter, view crawler.ScraperSettings) {
	if err := view.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
		return
	}
	updated, err := s.settings.Update(view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error updating settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUserAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents":  browser.UserAgentKeys(),
		"default": browser.DefaultUserAgentKey,
	})
}

func (s *Server) handleGetProxies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proxies": s.settings.Proxies(),
	})
}

// handleSetProxies adds one proxy to the list.
func (s *Server) handleSetProxies(w http.ResponseWriter, r *http.Request) {
	var p browser.Proxy
	if !decodeJSON(w, r, &p) {
		return
	}
	p.Host = strings.TrimSpace(p.Host)
	if err := s.settings.SetProxies(append(s.settings.Proxies(), p)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proxy", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "added",
		"proxy":  p,
	})
}
