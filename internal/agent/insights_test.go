package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/pkg/protocol"
)

func TestExtractInsights(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantCount  int
		wantAnswer string
	}{
		{
			name:       "fenced object",
			text:       "Summary first.\n```json\n{\"insights\":[{\"category\":\"essay\",\"priority\":\"high\",\"finding\":\"Draft missing\"}]}\n```",
			wantCount:  1,
			wantAnswer: "Summary first.",
		},
		{
			name:       "bare list after text",
			text:       `Found one. [{"category":"task","priority":"Medium","finding":"Overdue task","recommendation":"Follow up"}]`,
			wantCount:  1,
			wantAnswer: "Found one.",
		},
		{
			name:       "braces inside strings",
			text:       `{"insights":[{"category":"task","priority":"low","finding":"uses {curly} and ] brackets"}]} trailing`,
			wantCount:  1,
			wantAnswer: "trailing",
		},
		{
			name:       "payload is the whole answer",
			text:       "```json\n[{\"category\":\"essay\",\"priority\":\"HIGH\",\"finding\":\"Draft missing\"},{\"category\":\"task\",\"priority\":\"low\",\"finding\":\"Overdue task\"}]\n```\n",
			wantCount:  2,
			wantAnswer: "Insights:\n- [high] Draft missing\n- [low] Overdue task",
		},
		{
			name:       "no payload",
			text:       "Nothing structured here.",
			wantAnswer: "Nothing structured here.",
		},
		{
			name:       "unknown field rejects payload",
			text:       `See {"insights":[{"category":"task","priority":"low","finding":"x","score":3}]}`,
			wantAnswer: `See {"insights":[{"category":"task","priority":"low","finding":"x","score":3}]}`,
		},
		{
			name:       "unknown priority rejects payload",
			text:       `[{"category":"task","priority":"urgent","finding":"x"}]`,
			wantAnswer: `[{"category":"task","priority":"urgent","finding":"x"}]`,
		},
		{
			name:       "empty finding rejects payload",
			text:       `[{"category":"task","priority":"low","finding":"  "}]`,
			wantAnswer: `[{"category":"task","priority":"low","finding":"  "}]`,
		},
		{
			name:       "malformed json",
			text:       "Here: {not json}",
			wantAnswer: "Here: {not json}",
		},
		{
			name:       "unbalanced",
			text:       `Start [{"category":"task"`,
			wantAnswer: `Start [{"category":"task"`,
		},
		{
			name:       "empty list",
			text:       `Nothing to flag {"insights":[]}`,
			wantAnswer: `Nothing to flag {"insights":[]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insights, answer := ExtractInsights(tt.text)
			assert.Len(t, insights, tt.wantCount)
			assert.Equal(t, tt.wantAnswer, answer)
		})
	}
}

func TestExtractInsightsNormalizesPriority(t *testing.T) {
	insights, _ := ExtractInsights(`[{"category":"task","priority":" HIGH ","finding":"x"}]`)
	require.Len(t, insights, 1)
	assert.Equal(t, protocol.PriorityHigh, insights[0].Priority)
}
