package teneo

import (
	"time"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

// ResponseFormat selects how agent responses are shaped before they are
// emitted and returned.
type ResponseFormat string

const (
	// FormatRaw keeps the underlying frame and drops the humanized
	// string.
	FormatRaw ResponseFormat = "raw"
	// FormatHumanized keeps the human-readable string and drops the
	// underlying frame.
	FormatHumanized ResponseFormat = "humanized"
	// FormatBoth keeps everything.
	FormatBoth ResponseFormat = "both"
)

func (f ResponseFormat) valid() bool {
	return f == FormatRaw || f == FormatHumanized || f == FormatBoth
}

// AgentResponse is the SDK's view of a task_response or an
// agent-originated message.
type AgentResponse struct {
	TaskID      string            `json:"task_id,omitempty"`
	AgentID     string            `json:"agent_id,omitempty"`
	AgentName   string            `json:"agent_name,omitempty"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Raw         *protocol.Message `json:"raw,omitempty"`
	Humanized   string            `json:"humanized,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// buildAgentResponse maps a frame to an AgentResponse. The humanized
// form is the content string; raw keeps the whole frame.
func buildAgentResponse(msg *protocol.Message) *AgentResponse {
	content := msg.Content
	if content == "" {
		content = msg.DataString("content")
	}
	errText := msg.DataString("error")
	taskID := msg.TaskID()
	if taskID == "" {
		taskID = msg.ID
	}
	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}
	agentName := msg.DataString("agent_name")
	if agentName == "" {
		agentName = msg.DataString("agent")
	}
	return &AgentResponse{
		TaskID:      taskID,
		AgentID:     msg.From,
		AgentName:   agentName,
		Content:     content,
		ContentType: msg.ContentType,
		Success:     errText == "",
		Error:       errText,
		Timestamp:   ts,
		Raw:         msg,
		Humanized:   content,
	}
}

// applyFormat trims the response per the configured format and
// optionally attaches transport metadata.
func (c *Client) applyFormat(resp *AgentResponse) *AgentResponse {
	if resp == nil {
		return nil
	}
	c.formatMu.RLock()
	format := c.format
	includeMeta := c.includeMetadata
	c.formatMu.RUnlock()

	out := *resp
	switch format {
	case FormatRaw:
		out.Humanized = ""
	case FormatHumanized:
		out.Raw = nil
	}
	if includeMeta {
		out.Metadata = map[string]any{
			"wallet_address": c.oracle.Address(),
			"received_at":    time.Now().UTC(),
			"sdk_version":    Version,
		}
		if resp.Raw != nil {
			out.Metadata["room"] = resp.Raw.Room
		}
	}
	return &out
}
