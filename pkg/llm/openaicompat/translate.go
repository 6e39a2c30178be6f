package openaicompat

import (
	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
)

// TranslateRequest converts a backend request into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateRequest(req *llm.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
		Stream:      req.Stream,
		Extra:       req.Extra,
	}

	// When streaming, enable usage reporting in the stream.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{
			IncludeUsage: true,
		}
	}

	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	return cr
}

// TranslateResponse converts a backend ChatCompletionResponse into the
// canonical completion response. The finish reason is normalized: "length"
// survives only when the request carried a max_tokens cap.
func TranslateResponse(resp *ChatCompletionResponse, req *llm.Request) *chat.CompletionResponse {
	out := &chat.CompletionResponse{
		ID:      resp.ID,
		Object:  chat.ObjectChatCompletion,
		Created: resp.Created,
		Model:   resp.Model,
	}
	if out.ID == "" {
		out.ID = chat.NewCompletionID()
	}

	for _, ch := range resp.Choices {
		reason := chat.FinishReasonFor(ch.FinishReason, req.MaxTokens != nil)
		role := chat.Role(ch.Message.Role)
		if !role.Valid() {
			role = chat.RoleAssistant
		}
		out.Choices = append(out.Choices, chat.Choice{
			Index:        ch.Index,
			Message:      chat.Message{Role: role, Content: ch.Message.Content},
			FinishReason: &reason,
		})
	}

	if resp.Usage != nil {
		out.Usage = &chat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return out
}

// translateUsage converts wire usage into canonical usage.
func translateUsage(u *ChatUsage) *chat.Usage {
	if u == nil {
		return nil
	}
	return &chat.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
