package agent

import (
	"encoding/json"
	"strings"
)

// streamMsg is the top-level structure for a single NDJSON line an agent CLI
// emits on stdout/stderr while it works. Fields are union-typed across CLI
// formats; only the relevant subset is populated for any given message.
// Ported from the teacher's adapter.streamMsg — used here purely to surface
// zerolog progress events, never as the authoritative result (spec.md
// section 4.3: the output file is authoritative).
type streamMsg struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	Message *assistantMessage `json:"message,omitempty"`
	Result  string            `json:"result,omitempty"`
	Part    *partContent      `json:"part,omitempty"`

	AssistantMessageEvent *assistantEvent `json:"assistantMessageEvent,omitempty"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type partContent struct {
	Text string `json:"text"`
}

type assistantEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
}

// parseStreamLine extracts the displayable text from one line of agent
// stdout/stderr, or "" if the line carries no text worth logging. Non-JSON
// lines pass through unchanged.
func parseStreamLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	var msg streamMsg
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return line
	}

	switch msg.Type {
	case "assistant":
		if msg.Message == nil {
			return ""
		}
		var parts []string
		for _, block := range msg.Message.Content {
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "")

	case "result":
		if msg.Subtype == "success" {
			return msg.Result
		}
		return ""

	case "text":
		if msg.Part != nil {
			return msg.Part.Text
		}
		return ""

	case "message_update":
		if msg.AssistantMessageEvent != nil && msg.AssistantMessageEvent.Type == "text_delta" {
			return msg.AssistantMessageEvent.Delta
		}
		return ""

	case "step_finish":
		return ""

	default:
		return line
	}
}
