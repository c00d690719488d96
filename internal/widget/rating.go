package widget

type RatingReason string

const (
	RatingAICompleted RatingReason = "ai_completed"
	RatingAgentClosed RatingReason = "agent_closed"
)

// RatingPrompt is the end-of-conversation satisfaction prompt. It can be shown at
// most once per session; the shown flag never resets.
type RatingPrompt struct {
	shown   bool
	visible bool
	reason  RatingReason
}

// Trigger shows the prompt and records reason. It reports false when the prompt was
// already shown in this session.
func (r *RatingPrompt) Trigger(reason RatingReason) bool {
	if r.shown {
		return false
	}
	r.shown = true
	r.visible = true
	r.reason = reason
	return true
}

// Dismiss hides the prompt. The shown flag stays set.
func (r *RatingPrompt) Dismiss() {
	r.visible = false
}

func (r *RatingPrompt) Visible() bool        { return r.visible }
func (r *RatingPrompt) Shown() bool          { return r.shown }
func (r *RatingPrompt) Reason() RatingReason { return r.reason }
