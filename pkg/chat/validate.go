package chat

import "fmt"

// Temperature bounds accepted by the common option subset. Providers may
// clamp further; normalization here only enforces the shared contract.
const (
	TemperatureMin = 0.0
	TemperatureMax = 2.0
)

// Validate normalizes the recognized option keys in place. Temperature is
// clamped to [TemperatureMin, TemperatureMax]; a negative MaxTokens is
// rejected. Extra entries are never inspected.
func (o *Options) Validate() error {
	if o.Temperature != nil {
		if *o.Temperature < TemperatureMin {
			o.Temperature = Float64(TemperatureMin)
		} else if *o.Temperature > TemperatureMax {
			o.Temperature = Float64(TemperatureMax)
		}
	}

	if o.MaxTokens != nil && *o.MaxTokens < 0 {
		return NewInitError(fmt.Sprintf("max_tokens must be non-negative, got %d", *o.MaxTokens))
	}

	return nil
}

// ValidateMessages checks that every message carries a canonical role.
// Adapters call this before translation so an unknown role is reported
// instead of silently dropped.
func ValidateMessages(messages []Message) error {
	for i, m := range messages {
		if !m.Role.Valid() {
			return NewBackendError(
				fmt.Sprintf("message %d has unsupported role %q", i, m.Role),
				"unsupported_role",
			)
		}
	}
	return nil
}
