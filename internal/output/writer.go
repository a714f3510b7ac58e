// Package output writes crawl and scrape results for the command line.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteResult writes a complete result document
	WriteResult(result interface{}) error

	// WriteEvent writes a progress event (streaming mode only)
	WriteEvent(ev crawler.Event) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	Stream   bool
	FilePath string
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case FormatJSONL:
		return NewJSONLWriter(w, config.Stream)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}

// Open creates a writer for config.FilePath, or stdout when the path is
// empty or "-". Closing the writer closes the file but never stdout.
func Open(config Config) (Writer, error) {
	switch config.Format {
	case "", FormatJSON, FormatJSONL:
	default:
		return nil, fmt.Errorf("unsupported output format %q", config.Format)
	}
	if config.FilePath == "" || config.FilePath == "-" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}
	f, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewWriter(f, config), nil
}

type nopCloser struct {
	io.Writer
}
