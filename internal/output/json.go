package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// StreamEvent represents a streaming output event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// JSONWriter writes output in JSON format.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteResult writes result as one JSON document.
func (j *JSONWriter) WriteResult(result interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if j.stream {
		return j.writeLine(StreamEvent{Type: "result", Data: result})
	}
	return j.writeLine(result)
}

// WriteEvent writes a progress event in streaming mode.
func (j *JSONWriter) WriteEvent(ev crawler.Event) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	return j.writeLine(StreamEvent{Type: string(ev.Type), Data: ev})
}

func (j *JSONWriter) writeLine(v interface{}) error {
	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// JSONLWriter writes one compact JSON object per line. A crawl result is
// written as one line per page.
type JSONLWriter struct {
	*JSONWriter
}

// NewJSONLWriter creates a JSON Lines writer.
func NewJSONLWriter(w io.Writer, stream bool) *JSONLWriter {
	return &JSONLWriter{JSONWriter: NewJSONWriter(w, false, stream)}
}

// WriteResult writes the pages of a crawl result line by line; any other
// result is written as a single line.
func (l *JSONLWriter) WriteResult(result interface{}) error {
	res, ok := result.(*crawler.CrawlResult)
	if !ok {
		return l.JSONWriter.WriteResult(result)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	for _, page := range res.Pages {
		if err := l.writeLine(page); err != nil {
			return err
		}
	}
	return nil
}

// ProgressWriter wraps a writer and reports every event.
type ProgressWriter struct {
	Writer
	onEvent func(ev crawler.Event)
}

// NewProgressWriter creates a writer that calls onEvent before writing
// each event.
func NewProgressWriter(w Writer, onEvent func(crawler.Event)) *ProgressWriter {
	return &ProgressWriter{
		Writer:  w,
		onEvent: onEvent,
	}
}

// WriteEvent reports ev and writes it.
func (p *ProgressWriter) WriteEvent(ev crawler.Event) error {
	if p.onEvent != nil {
		p.onEvent(ev)
	}
	return p.Writer.WriteEvent(ev)
}
