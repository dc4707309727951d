package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/records"
	"github.com/flynn-ai/agentcore/internal/tools/executor"
	"github.com/flynn-ai/agentcore/internal/tools/schemas"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

type binding struct {
	exec   executor.Tool
	schema *schemas.Schema
}

// Registry binds every catalogued tool to its schema and executor.
type Registry struct {
	bindings []binding
	schemas  *schemas.Registry
}

// Options configures NewRegistry.
type Options struct {
	// Now overrides the clock used by date-aware tools.
	Now func() time.Time
}

// NewRegistry builds the registry over a record store.
func NewRegistry(store records.Store, opts Options) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("tools: record store is required")
	}

	// Entries must stay in ToolID order.
	table := [...]binding{
		{&executor.SearchStudents{Store: store}, schemas.SearchStudents()},
		{&executor.GetStudentProfile{Store: store}, schemas.GetStudentProfile()},
		{&executor.ListTasks{Store: store}, schemas.ListTasks()},
		{&executor.ListDeadlines{Store: store, Now: opts.Now}, schemas.ListDeadlines()},
		{&executor.GetEssay{Store: store}, schemas.GetEssay()},
		{&executor.AnalyzeRisk{Store: store, Now: opts.Now}, schemas.AnalyzeRisk()},
		{&executor.CreateTask{Store: store}, schemas.CreateTask()},
		{&executor.UpdateTask{Store: store}, schemas.UpdateTask()},
		{&executor.UpdateEssayStatus{Store: store}, schemas.UpdateEssayStatus()},
		{&executor.DraftLetter{Store: store}, schemas.DraftLetter()},
		{&executor.SendReminder{Store: store, Now: opts.Now}, schemas.SendReminder()},
		{&executor.DeleteRecord{Store: store}, schemas.DeleteRecord()},
		{&executor.ExportStudentData{Store: store}, schemas.ExportStudentData()},
	}
	const (
		_ = uint(len(table) - int(toolCount))
		_ = uint(int(toolCount) - len(table))
	)

	r := &Registry{
		bindings: table[:],
		schemas:  schemas.NewRegistry(),
	}
	for i, b := range table {
		name := descriptors[i].Name
		if b.exec.Name() != name || b.schema.Name != name {
			return nil, fmt.Errorf("tools: binding %d is %s/%s, want %s", i, b.exec.Name(), b.schema.Name, name)
		}
		r.schemas.Register(b.schema)
	}
	return r, nil
}

// Schemas returns the schema registry in catalog order.
func (r *Registry) Schemas() *schemas.Registry {
	return r.schemas
}

// Schema returns one tool's schema.
func (r *Registry) Schema(id ToolID) *schemas.Schema {
	return r.bindings[id].schema
}

// Executor returns one tool's executor.
func (r *Registry) Executor(id ToolID) executor.Tool {
	return r.bindings[id].exec
}

// ModelTools renders tool definitions for a model request, in the order given.
func (r *Registry) ModelTools(ids []ToolID) []model.Tool {
	out := make([]model.Tool, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		s := r.bindings[id].schema
		out = append(out, model.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return out
}

// Definitions describes the given tools for API clients, in the order given.
func (r *Registry) Definitions(ids []ToolID) []protocol.ToolDefinition {
	out := make([]protocol.ToolDefinition, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		d := id.Descriptor()
		s := r.bindings[id].schema
		out = append(out, protocol.ToolDefinition{
			Name:                 d.Name,
			DisplayName:          d.DisplayName,
			Description:          s.Description,
			Category:             string(d.Category),
			Permission:           d.Permission.String(),
			HasPII:               d.HasPII,
			RequiresConfirmation: d.RequiresConfirmation,
			Tier:                 string(d.Tier),
			Parameters:           s.Parameters,
		})
	}
	return out
}

// Execute runs a tool.
func (r *Registry) Execute(ctx context.Context, id ToolID, input map[string]any) (*executor.Result, error) {
	if !id.Valid() {
		return nil, &ToolNotFoundError{Name: id.String()}
	}
	return r.bindings[id].exec.Execute(ctx, input)
}

// ToolNotFoundError is returned when a tool doesn't exist.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return "tool not found: " + e.Name
}
