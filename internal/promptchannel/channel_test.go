package promptchannel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luigi-run/luigi/internal/types"
	"github.com/stretchr/testify/require"
)

func TestAskResolvesWhenResponseFileAppears(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.PollInterval = 20 * time.Millisecond

	req := types.PromptRequest{ID: "req-1", Kind: types.PromptReviewerClarification, Questions: []string{"throw or return null?"}}

	var notified types.PromptRequest
	c.Notify = func(r types.PromptRequest) { notified = r }

	go func() {
		time.Sleep(30 * time.Millisecond)
		resp := types.PromptResponse{RequestID: "req-1", Answers: []string{"throw"}}
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "req-1.response.json"), data, 0o644))
	}()

	resp, err := c.Ask(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"throw"}, resp.Answers)
	require.Equal(t, "req-1", notified.ID)

	require.FileExists(t, filepath.Join(dir, "req-1.request.json"))
}

func TestAskCancellationMarksCancelled(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.PollInterval = 10 * time.Millisecond

	var cancelledID string
	c.OnCancel = func(id string) { cancelledID = id }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	req := types.PromptRequest{ID: "req-2", Questions: []string{"q"}}
	_, err := c.Ask(ctx, req)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, "req-2", cancelledID)
}

func TestAskRespectsDeadline(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.PollInterval = 10 * time.Millisecond

	req := types.PromptRequest{
		ID:             "req-3",
		Questions:      []string{"q"},
		DeadlineUnixMs: time.Now().Add(20 * time.Millisecond).UnixMilli(),
	}
	_, err := c.Ask(context.Background(), req)
	require.ErrorIs(t, err, ErrCancelled)
}
