package chat

// Options is the recognized completion option set plus an opaque
// passthrough for backend-specific parameters. Recognized keys are
// normalized by Validate; Extra entries are handed to the adapter
// untouched and must never break normalization.
type Options struct {
	// Model selects the backend model. Required on a call unless the
	// client carries a default model.
	Model string

	// Temperature controls sampling randomness, clamped to [0, 2].
	Temperature *float64

	// MaxTokens caps the generated length. Must be non-negative.
	MaxTokens *int

	// Extra holds unrecognized options passed through to the adapter.
	Extra map[string]any
}

// Merge combines two option sets with right-biased precedence: every
// field set on override wins over base. This is the single merge rule in
// the system — call-site options override client defaults, and later
// Extra keys win on conflict.
func Merge(base, override Options) Options {
	out := Options{
		Model:       base.Model,
		Temperature: base.Temperature,
		MaxTokens:   base.MaxTokens,
	}

	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}

	if len(base.Extra) > 0 || len(override.Extra) > 0 {
		out.Extra = make(map[string]any, len(base.Extra)+len(override.Extra))
		for k, v := range base.Extra {
			out.Extra[k] = v
		}
		for k, v := range override.Extra {
			out.Extra[k] = v
		}
	}

	return out
}

// Float64 returns a pointer to v. Convenience for Options literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v. Convenience for Options literals.
func Int(v int) *int { return &v }

// String returns a pointer to v. Convenience for message literals.
func String(v string) *string { return &v }
