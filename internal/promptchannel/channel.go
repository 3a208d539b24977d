// Package promptchannel is Luigi's Prompt Channel: a file-based rendezvous
// between the Orchestrator and a human operator (spec.md section 4.5).
// Grounded on the teacher's internal/state crash-safe tmp+rename write idiom
// (here upgraded to google/renameio/v2), applied per-request instead of to
// one singleton state file, plus fsnotify for response-file notification and
// mattn/go-isatty for the terminal-fallback TTY check.
package promptchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/types"
	"github.com/mattn/go-isatty"
)

// DefaultPollInterval is the bounded-interval fallback poll when fsnotify is
// unavailable (spec.md section 5).
const DefaultPollInterval = 2 * time.Second

// Channel asks PromptRequests and waits for a PromptResponse through the
// run's prompt directory.
type Channel struct {
	// Dir is the run's prompt directory (spec.md section 6: "prompts/").
	Dir string
	// PollInterval is the fsnotify-unavailable fallback poll period.
	PollInterval time.Duration
	// HeartbeatPath, if non-empty and present, indicates an external UI is
	// observing prompts; this disables the terminal fallback so the two
	// responders can't race each other.
	HeartbeatPath string
	// Notify, if set, is called with every outgoing request so an external
	// notifier may deliver it elsewhere (spec.md section 4.5 fan-out). The
	// first response written to Dir resolves the request regardless of
	// which responder wrote it.
	Notify func(types.PromptRequest)
	// OnCancel is invoked with a request's id when Ask is cancelled via ctx,
	// so the caller can mark the request cancelled in the State Store.
	OnCancel func(requestID string)

	stdin  *bufio.Reader
	stdout *os.File
}

// New returns a Channel rooted at dir.
func New(dir string) *Channel {
	return &Channel{Dir: dir, PollInterval: DefaultPollInterval, stdout: os.Stdout}
}

func (c *Channel) requestPath(id string) string  { return filepath.Join(c.Dir, id+".request.json") }
func (c *Channel) responsePath(id string) string { return filepath.Join(c.Dir, id+".response.json") }

// Ask writes req to the prompt directory and blocks until a matching
// response arrives, ctx is cancelled, or req's deadline (if any) elapses.
func (c *Channel) Ask(ctx context.Context, req types.PromptRequest) (types.PromptResponse, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return types.PromptResponse{}, fmt.Errorf("promptchannel: creating prompt dir: %w", err)
	}

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return types.PromptResponse{}, fmt.Errorf("promptchannel: encoding request: %w", err)
	}
	if err := renameio.WriteFile(c.requestPath(req.ID), data, 0o644); err != nil {
		return types.PromptResponse{}, fmt.Errorf("promptchannel: writing request: %w", err)
	}

	if c.Notify != nil {
		c.Notify(req)
	}

	if req.DeadlineUnixMs > 0 {
		deadline := time.UnixMilli(req.DeadlineUnixMs)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if c.isInteractive() {
		return c.askInteractive(req)
	}
	resp, err := c.waitForResponse(ctx, req)
	if errors.Is(err, ErrCancelled) {
		// Rewrite the request file so observers see it was abandoned.
		req.Cancelled = true
		if data, mErr := json.MarshalIndent(req, "", "  "); mErr == nil {
			_ = renameio.WriteFile(c.requestPath(req.ID), data, 0o644)
		}
	}
	return resp, err
}

// isInteractive reports whether Ask should prompt on stdin/stdout directly
// rather than waiting on a file (spec.md section 4.5 terminal fallback).
func (c *Channel) isInteractive() bool {
	if c.HeartbeatPath != "" {
		if _, err := os.Stat(c.HeartbeatPath); err == nil {
			return false
		}
	}
	return isatty.IsTerminal(os.Stdin.Fd())
}

func (c *Channel) askInteractive(req types.PromptRequest) (types.PromptResponse, error) {
	if c.stdin == nil {
		c.stdin = bufio.NewReader(os.Stdin)
	}

	var answers []string
	for _, q := range req.Questions {
		fmt.Fprintf(c.stdout, "%s\n> ", q)
		line, err := c.stdin.ReadString('\n')
		if err != nil {
			return types.PromptResponse{}, fmt.Errorf("promptchannel: reading stdin: %w", err)
		}
		answers = append(answers, strings.TrimRight(line, "\r\n"))
	}

	resp := types.PromptResponse{RequestID: req.ID, Answers: answers}
	if err := c.writeResponse(resp); err != nil {
		return types.PromptResponse{}, err
	}
	return resp, nil
}

func (c *Channel) writeResponse(resp types.PromptResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("promptchannel: encoding response: %w", err)
	}
	if err := renameio.WriteFile(c.responsePath(resp.RequestID), data, 0o644); err != nil {
		return fmt.Errorf("promptchannel: writing response: %w", err)
	}
	return nil
}

// waitForResponse watches Dir with fsnotify for the response file, falling
// back to a poll ticker if the watcher cannot be created or errors.
func (c *Channel) waitForResponse(ctx context.Context, req types.PromptRequest) (types.PromptResponse, error) {
	respPath := c.responsePath(req.ID)

	if resp, ok := c.tryReadResponse(respPath); ok {
		return resp, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("promptchannel: fsnotify unavailable, falling back to polling")
		return c.pollForResponse(ctx, req, respPath)
	}
	defer watcher.Close()

	if err := watcher.Add(c.Dir); err != nil {
		logger.Warn().Err(err).Msg("promptchannel: watching prompt dir failed, falling back to polling")
		return c.pollForResponse(ctx, req, respPath)
	}

	poll := time.NewTicker(c.pollInterval())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.OnCancel != nil {
				c.OnCancel(req.ID)
			}
			return types.PromptResponse{}, ErrCancelled

		case event, ok := <-watcher.Events:
			if !ok {
				return c.pollForResponse(ctx, req, respPath)
			}
			if filepath.Clean(event.Name) == filepath.Clean(respPath) {
				if resp, ok := c.tryReadResponse(respPath); ok {
					return resp, nil
				}
			}

		case err, ok := <-watcher.Errors:
			if ok {
				logger.Warn().Err(err).Msg("promptchannel: watcher error, continuing with poll fallback")
			}

		case <-poll.C:
			if resp, ok := c.tryReadResponse(respPath); ok {
				return resp, nil
			}
		}
	}
}

func (c *Channel) pollForResponse(ctx context.Context, req types.PromptRequest, respPath string) (types.PromptResponse, error) {
	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.OnCancel != nil {
				c.OnCancel(req.ID)
			}
			return types.PromptResponse{}, ErrCancelled
		case <-ticker.C:
			if resp, ok := c.tryReadResponse(respPath); ok {
				return resp, nil
			}
		}
	}
}

func (c *Channel) tryReadResponse(path string) (types.PromptResponse, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PromptResponse{}, false
	}
	var resp types.PromptResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.PromptResponse{}, false
	}
	return resp, true
}

func (c *Channel) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}
