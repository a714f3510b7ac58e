package api

import (
	"net/http"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/state"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// TaskStatus is the API view of a crawl task.
type TaskStatus struct {
	TaskID       string          `json:"task_id"`
	StartURL     string          `json:"start_url"`
	State        state.TaskState `json:"state"`
	PagesCrawled int             `json:"pages_crawled"`
	Queue        int             `json:"queue"`
	Depth        int             `json:"depth"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

func taskStatus(rec *state.TaskRecord) TaskStatus {
	st := TaskStatus{
		TaskID:       rec.ID,
		StartURL:     rec.StartURL,
		State:        rec.State,
		PagesCrawled: rec.PagesCrawled,
		Queue:        rec.Queue,
		Depth:        rec.Depth,
		Error:        rec.Error,
		CreatedAt:    rec.CreatedAt,
	}
	if !rec.FinishedAt.IsZero() {
		finished := rec.FinishedAt
		st.FinishedAt = &finished
	}
	return st
}

// taskID reads the task_id query parameter, replying 400 when absent.
func taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("task_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing task_id", "task_id query parameter is required")
		return "", false
	}
	return id, true
}

// handleCrawlStart starts a background crawl. The body is a scrape request
// whose crawl_options and browser_options override the settings.
func (s *Server) handleCrawlStart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScrape(w, r)
	if !ok {
		return
	}
	job := crawler.Job{
		StartURL: req.URL,
		Policy:   s.scraper.RequestPolicy(req),
		Profile:  s.scraper.RequestProfile(req),
	}
	id, err := s.tasks.Start(job)
	if err != nil {
		s.fail(w, r, "Crawl error", err)
		return
	}
	rec, err := s.tasks.Status(id)
	if err != nil {
		s.fail(w, r, "Crawl error", err)
		return
	}
	writeData(w, http.StatusAccepted, taskStatus(rec))
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	rec, err := s.tasks.Status(id)
	if err != nil {
		s.fail(w, r, "Task not found", err)
		return
	}
	writeData(w, http.StatusOK, taskStatus(rec))
}

func (s *Server) handleCrawlResult(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	result, err := s.tasks.Result(id)
	if err != nil {
		s.fail(w, r, "Result not available", err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleCrawlList(w http.ResponseWriter, r *http.Request) {
	records, err := s.tasks.List()
	if err != nil {
		s.fail(w, r, "Task listing error", err)
		return
	}
	list := make([]TaskStatus, len(records))
	for i, rec := range records {
		list[i] = taskStatus(rec)
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCrawlCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.tasks.Cancel(id); err != nil {
		s.fail(w, r, "Task not found", err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// handleCrawlStream upgrades to a WebSocket carrying the task's events.
func (s *Server) handleCrawlStream(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.stream.Serve(w, r, id); err != nil {
		s.fail(w, r, "Task not found", err)
	}
}
