package chat

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn. Messages are immutable values;
// ordering within a slice is the conversation order and duplicates are
// allowed.
type Message struct {
	Role    Role    `json:"role"`
	Content *string `json:"content"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: &content}
}

// Text returns the message content, or "" when content is absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Finish reasons reported on a Choice. "length" is used exactly when the
// call requested max_tokens and generation was truncated by that cap;
// every other terminal condition is normalized to "stop".
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
)

// Choice is one generated alternative in a CompletionResponse. The system
// requests a single choice (index 0); the slice shape is kept for wire
// compatibility with multi-choice backends.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// ObjectChatCompletion is the literal object tag carried by every
// CompletionResponse.
const ObjectChatCompletion = "chat.completion"

// CompletionResponse is the final aggregated result of a completion call,
// for both the non-streaming path and the post-stream aggregate.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Text returns the content of the first choice, or "" if there is none.
func (r *CompletionResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Text()
}

// FinishReason returns the finish reason of the first choice, or "".
func (r *CompletionResponse) FinishReason() string {
	if r == nil || len(r.Choices) == 0 || r.Choices[0].FinishReason == nil {
		return ""
	}
	return *r.Choices[0].FinishReason
}

// Usage holds token accounting reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamDelta is one incremental update delivered to a streaming sink.
// Deltas are transient: they are not persisted, not retried, and consumed
// exactly once, in arrival order.
type StreamDelta struct {
	Content      *string `json:"content,omitempty"`
	Role         *Role   `json:"role,omitempty"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Text returns the delta content, or "" when content is absent.
func (d StreamDelta) Text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// Sink receives stream deltas as they arrive. A sink may have side effects
// but must not block indefinitely; the adapter does not read the next
// backend event until the sink returns.
type Sink func(StreamDelta)

// FinishReasonFor maps a backend finish reason onto the canonical policy:
// "length" exactly when the call requested max_tokens and the backend
// reports truncation by that cap; everything else (including unknown
// backend values) becomes "stop".
func FinishReasonFor(backendReason string, maxTokensRequested bool) string {
	if backendReason == FinishReasonLength && maxTokensRequested {
		return FinishReasonLength
	}
	return FinishReasonStop
}
