package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatingPrompt_FirstReasonWins(t *testing.T) {
	var r RatingPrompt
	assert.False(t, r.Visible())

	assert.True(t, r.Trigger(RatingAgentClosed))
	assert.False(t, r.Trigger(RatingAICompleted))
	assert.True(t, r.Visible())
	assert.Equal(t, RatingAgentClosed, r.Reason())

	r.Dismiss()
	assert.False(t, r.Visible())
	assert.True(t, r.Shown())
	assert.False(t, r.Trigger(RatingAgentClosed))
	assert.False(t, r.Visible())
}
