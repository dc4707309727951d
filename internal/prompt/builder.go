// Package prompt builds system prompts for agentcore turns.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/flynn-ai/agentcore/internal/tools"
)

// Builder assembles the system prompt for a turn.
type Builder struct {
	Product  string
	Timezone *time.Location
	Now      func() time.Time

	// MaxInsights is advertised to the model; extra insights are dropped anyway.
	MaxInsights int
}

// SystemContext is what varies per turn.
type SystemContext struct {
	Role  tools.Role
	Mode  tools.Mode
	Tools []tools.ToolID
	Extra string
}

// NewBuilder creates a builder with defaults.
func NewBuilder() *Builder {
	return &Builder{
		Product:     "the application-management workspace",
		Timezone:    time.UTC,
		Now:         time.Now,
		MaxInsights: 10,
	}
}

// BuildSystemPrompt renders the system prompt.
func (b *Builder) BuildSystemPrompt(ctx SystemContext) string {
	var sections []string
	sections = append(sections, fmt.Sprintf("Identity:\nYou are the assistant for %s. Answer from tool results, never from guesses. Be concise.", b.Product))
	sections = append(sections, "Caller:\n"+b.callerLine(ctx))
	sections = append(sections, "Tooling:\n"+b.toolingSection(ctx.Tools))
	sections = append(sections, "Safety:\n"+b.safetySection(ctx.Tools))
	if ctx.Mode == tools.ModeAutonomous || ctx.Mode == tools.ModeReview {
		sections = append(sections, "Insights:\n"+b.insightSection())
	}
	sections = append(sections, "Current Date:\n"+b.timeLine())
	if strings.TrimSpace(ctx.Extra) != "" {
		sections = append(sections, ctx.Extra)
	}
	return strings.Join(sections, "\n\n")
}

func (b *Builder) callerLine(ctx SystemContext) string {
	mode := ctx.Mode
	if mode == "" {
		mode = tools.ModeChat
	}
	return fmt.Sprintf("Role: %s. Mode: %s.", ctx.Role, mode)
}

func (b *Builder) toolingSection(ids []tools.ToolID) string {
	if len(ids) == 0 {
		return "None. Answer from the conversation only."
	}
	var bld strings.Builder
	for _, id := range ids {
		d := id.Descriptor()
		fmt.Fprintf(&bld, "- %s (%s, %s)\n", d.Name, d.DisplayName, d.Permission)
	}
	bld.WriteString("Only the tools above exist for this caller. Calls to any other tool are refused.")
	return bld.String()
}

func (b *Builder) safetySection(ids []tools.ToolID) string {
	var gated []string
	for _, id := range ids {
		if id.Descriptor().RequiresConfirmation {
			gated = append(gated, id.String())
		}
	}
	lines := []string{"Never reveal another student's data to a student."}
	if len(gated) > 0 {
		lines = append(lines, fmt.Sprintf("Ask the user to confirm before calling %s.", strings.Join(gated, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) insightSection() string {
	return fmt.Sprintf(`When you notice something the counselor should act on, end your answer with a JSON block:
{"insights":[{"category":"...","priority":"high|medium|low","finding":"...","recommendation":"..."}]}
At most %d insights. Omit the block when there is nothing to report.`, b.MaxInsights)
}

func (b *Builder) timeLine() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	loc := b.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format("Monday 2006-01-02")
}
