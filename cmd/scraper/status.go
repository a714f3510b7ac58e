package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScrapeIt/internal/api"
	fetch "github.com/PentesterFlow/ScrapeIt/internal/http"
	"github.com/PentesterFlow/ScrapeIt/internal/websocket"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

type statusFlags struct {
	server string
	token  string
	apiKey string
	follow bool
}

func newStatusCmd() *cobra.Command {
	f := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status [task_id]",
		Short: "Show the status of a crawl task",
		Long:  "Show the status of a crawl task on a running server, optionally following its events until it ends.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), f, args[0])
		},
	}

	cmd.Flags().StringVarP(&f.server, "server", "s", "http://localhost:5000", "Server URL")
	cmd.Flags().StringVar(&f.token, "token", "", "API token")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key sent as "+api.APIKeyHeader)
	cmd.Flags().BoolVarP(&f.follow, "follow", "f", false, "Stream events until the task ends")

	return cmd
}

func runStatus(out io.Writer, f *statusFlags, id string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	headers := map[string]string{}
	if f.apiKey != "" {
		headers[api.APIKeyHeader] = f.apiKey
	}

	if f.follow {
		streamURL, err := websocket.StreamURL(f.server, id, f.token)
		if err != nil {
			return err
		}
		ws := websocket.NewClient()
		ws.SetHeaders(headers)
		err = ws.Follow(ctx, streamURL, func(ev crawler.Event) {
			printEvent(out, ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}

	status, err := fetchStatus(ctx, f, headers, id)
	if err != nil {
		return err
	}
	printStatus(out, status)
	return nil
}

func fetchStatus(ctx context.Context, f *statusFlags, headers map[string]string, id string) (*api.TaskStatus, error) {
	u, err := url.Parse(f.server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = "/api/crawl_status"
	q := url.Values{"task_id": {id}}
	if f.token != "" {
		q.Set("token", f.token)
	}
	u.RawQuery = q.Encode()

	cfg := fetch.DefaultClientConfig()
	cfg.Timeout = 10 * time.Second
	cfg.Headers = headers
	cfg.SkipTLSVerify = false
	client := fetch.NewClient(cfg)
	defer client.Close()

	resp, err := client.GetWithRetry(ctx, u.String(), "")
	if err != nil {
		var envelope api.ErrorResponse
		if resp != nil && json.Unmarshal(resp.Body, &envelope) == nil && envelope.Error != "" {
			return nil, fmt.Errorf("%s: %s", envelope.Error, envelope.Details)
		}
		return nil, err
	}

	var envelope struct {
		Status string         `json:"status"`
		Data   api.TaskStatus `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected response: %w", err)
	}
	return &envelope.Data, nil
}

func printEvent(out io.Writer, ev crawler.Event) {
	switch ev.Type {
	case crawler.EventPage:
		fmt.Fprintf(out, "[page]  depth=%d crawled=%d queue=%d %s\n", ev.Depth, ev.PagesCrawled, ev.Queue, ev.URL)
	case crawler.EventSkip:
		fmt.Fprintf(out, "[skip]  %s\n", ev.URL)
	case crawler.EventError:
		fmt.Fprintf(out, "[error] %s: %s\n", ev.URL, ev.Error)
	case crawler.EventDone:
		fmt.Fprintf(out, "[done]  crawled=%d\n", ev.PagesCrawled)
	}
}

func printStatus(out io.Writer, s *api.TaskStatus) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Task:           %s\n", s.TaskID)
	fmt.Fprintf(out, "Start URL:      %s\n", s.StartURL)
	fmt.Fprintf(out, "State:          %s\n", s.State)
	fmt.Fprintf(out, "Pages Crawled:  %d\n", s.PagesCrawled)
	fmt.Fprintf(out, "Queue:          %d\n", s.Queue)
	fmt.Fprintf(out, "Depth:          %d\n", s.Depth)
	fmt.Fprintf(out, "Created:        %s\n", s.CreatedAt.Format(time.RFC3339))
	if s.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:       %s\n", s.FinishedAt.Format(time.RFC3339))
	}
	if s.Error != "" {
		fmt.Fprintf(out, "Error:          %s\n", s.Error)
	}
	fmt.Fprintln(out)
}
