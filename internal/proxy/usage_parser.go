package proxy

import (
	"bytes"
	"encoding/json"

	"eventproxy/internal/services"
)

const (
	DefaultBufferSize = 32 * 1024
	// maxCaptureBytes bounds how much of a non-streamed body is kept for usage parsing.
	maxCaptureBytes = 8 << 20
)

type usageParser interface {
	Feed(chunk []byte)
	Usage() services.TokenUsage
}

type openAIUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u openAIUsage) tokenUsage() services.TokenUsage {
	completion := u.CompletionTokens
	// embeddings report prompt and total only
	if completion == 0 && u.TotalTokens > u.PromptTokens {
		completion = u.TotalTokens - u.PromptTokens
	}
	return services.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: completion}
}

type openAIPayload struct {
	Usage   *openAIUsage `json:"usage"`
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// sseUsageParser incrementally parses OpenAI SSE events. A usage object sent by the
// upstream wins; otherwise every content-bearing choice delta counts as one completion token.
type sseUsageParser struct {
	buffer        []byte
	reported      *openAIUsage
	contentTokens int64
}

func newSSEUsageParser() *sseUsageParser {
	return &sseUsageParser{
		buffer: make([]byte, 0, DefaultBufferSize),
	}
}

func (p *sseUsageParser) Feed(chunk []byte) {
	p.buffer = append(p.buffer, chunk...)
	p.parse(false)
}

func (p *sseUsageParser) Usage() services.TokenUsage {
	p.parse(true)
	if p.reported != nil {
		return p.reported.tokenUsage()
	}
	return services.TokenUsage{CompletionTokens: p.contentTokens}
}

func (p *sseUsageParser) parse(flush bool) {
	for {
		event, rest, ok := nextSSEEvent(p.buffer, flush)
		if !ok {
			return
		}
		p.buffer = rest
		p.parseEvent(event)
	}
}

func nextSSEEvent(buf []byte, flush bool) ([]byte, []byte, bool) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return buf[:idx], buf[idx+4:], true
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return buf[:idx], buf[idx+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

func (p *sseUsageParser) parseEvent(event []byte) {
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
			continue
		}

		var payload openAIPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			continue
		}
		if payload.Usage != nil {
			u := *payload.Usage
			p.reported = &u
		}
		for _, c := range payload.Choices {
			if c.Delta.Content != "" || c.Text != "" {
				p.contentTokens++
			}
		}
	}
}

// jsonUsageParser reads the usage object of a buffered JSON response.
type jsonUsageParser struct {
	body      []byte
	truncated bool
}

func (p *jsonUsageParser) Feed(chunk []byte) {
	if p.truncated {
		return
	}
	if len(p.body)+len(chunk) > maxCaptureBytes {
		p.truncated = true
		p.body = nil
		return
	}
	p.body = append(p.body, chunk...)
}

func (p *jsonUsageParser) Usage() services.TokenUsage {
	var payload struct {
		Usage *openAIUsage `json:"usage"`
	}
	if p.truncated || json.Unmarshal(p.body, &payload) != nil || payload.Usage == nil {
		return services.TokenUsage{}
	}
	return payload.Usage.tokenUsage()
}
