package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flynn-ai/agentcore/internal/tools"
)

func TestBuildSystemPrompt(t *testing.T) {
	b := NewBuilder()
	b.Now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	visible, err := tools.FilterTools(tools.All(), tools.RoleCounselor, tools.ModeChat, tools.FilterOptions{})
	assert.NoError(t, err)

	p := b.BuildSystemPrompt(SystemContext{Role: tools.RoleCounselor, Mode: tools.ModeChat, Tools: visible})
	assert.Contains(t, p, "Role: counselor. Mode: chat.")
	assert.Contains(t, p, "- searchStudents (Search students, read)")
	assert.Contains(t, p, "confirm before calling sendReminder")
	assert.NotContains(t, p, "deleteRecord")
	assert.NotContains(t, p, "Insights:")
	assert.Contains(t, p, "Monday 2026-03-02")

	p = b.BuildSystemPrompt(SystemContext{Role: tools.RoleAdmin, Mode: tools.ModeReview})
	assert.Contains(t, p, "Tooling:\nNone.")
	assert.Contains(t, p, `"insights"`)
	assert.Contains(t, p, "At most 10 insights")
}
