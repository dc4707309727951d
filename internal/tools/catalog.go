// Package tools provides the tool catalog, the permission filter and the
// registry binding every tool to its schema and executor.
package tools

import (
	"slices"

	"github.com/flynn-ai/agentcore/internal/model"
)

// ToolID enumerates every tool the agent can call. The catalog, the schema
// table and the executor table are all indexed by it.
type ToolID int

const (
	SearchStudents ToolID = iota
	GetStudentProfile
	ListTasks
	ListDeadlines
	GetEssay
	AnalyzeRisk
	CreateTask
	UpdateTask
	UpdateEssayStatus
	DraftLetter
	SendReminder
	DeleteRecord
	ExportStudentData

	toolCount
)

// Role is the caller's role.
type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleCounselor || r == RoleAdmin
}

// Mode is the interaction mode of a request.
type Mode string

const (
	ModeChat       Mode = "chat"
	ModeAutonomous Mode = "autonomous"
	ModeReview     Mode = "review"
)

// Valid reports whether m is a known mode. The empty mode is valid and means "any".
func (m Mode) Valid() bool {
	return m == "" || m == ModeChat || m == ModeAutonomous || m == ModeReview
}

// Permission is the level of access a tool needs.
type Permission int

const (
	PermRead Permission = iota
	PermWrite
	PermAdmin
)

func (p Permission) String() string {
	switch p {
	case PermWrite:
		return "write"
	case PermAdmin:
		return "admin"
	default:
		return "read"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Category groups tools by the records they touch.
type Category string

const (
	CategoryStudent   Category = "student"
	CategoryTask      Category = "task"
	CategoryEssay     Category = "essay"
	CategoryLetter    Category = "letter"
	CategoryDeadline  Category = "deadline"
	CategoryAnalytics Category = "analytics"
	CategoryAdmin     Category = "admin"
)

// Descriptor is the static metadata of one tool.
type Descriptor struct {
	ID                   ToolID     `json:"-"`
	Name                 string     `json:"name"`
	DisplayName          string     `json:"display_name"`
	Category             Category   `json:"category"`
	Permission           Permission `json:"permission"`
	Roles                []Role     `json:"roles"`
	Modes                []Mode     `json:"modes"`
	HasPII               bool       `json:"has_pii"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	Tier                 model.Tier `json:"tier"` // preferred tier when no PII is involved
}

var (
	allRoles    = []Role{RoleStudent, RoleCounselor, RoleAdmin}
	staffRoles  = []Role{RoleCounselor, RoleAdmin}
	adminOnly   = []Role{RoleAdmin}
	allModes    = []Mode{ModeChat, ModeAutonomous, ModeReview}
	actingModes = []Mode{ModeChat, ModeAutonomous}
)

// descriptors is indexed by ToolID. Entries must stay in enum order.
var descriptors = [...]Descriptor{
	{SearchStudents, "searchStudents", "Search students", CategoryStudent, PermRead, staffRoles, allModes, true, false, model.TierFastCheap},
	{GetStudentProfile, "getStudentProfile", "Student profile", CategoryStudent, PermRead, allRoles, allModes, true, false, model.TierFastCheap},
	{ListTasks, "listTasks", "List tasks", CategoryTask, PermRead, allRoles, allModes, false, false, model.TierFastCheap},
	{ListDeadlines, "listDeadlines", "List deadlines", CategoryDeadline, PermRead, allRoles, allModes, false, false, model.TierFastCheap},
	{GetEssay, "getEssay", "Read essay", CategoryEssay, PermRead, allRoles, allModes, true, false, model.TierLargeContext},
	{AnalyzeRisk, "analyzeRisk", "Analyze risk", CategoryAnalytics, PermRead, staffRoles, allModes, false, false, model.TierHighReasoning},
	{CreateTask, "createTask", "Create task", CategoryTask, PermWrite, allRoles, actingModes, false, false, model.TierFastCheap},
	{UpdateTask, "updateTask", "Update task", CategoryTask, PermWrite, allRoles, actingModes, false, false, model.TierFastCheap},
	{UpdateEssayStatus, "updateEssayStatus", "Update essay status", CategoryEssay, PermWrite, staffRoles, []Mode{ModeChat, ModeReview}, false, false, model.TierFastCheap},
	{DraftLetter, "draftLetter", "Draft letter", CategoryLetter, PermWrite, staffRoles, actingModes, true, false, model.TierHighReasoning},
	{SendReminder, "sendReminder", "Send reminder", CategoryTask, PermWrite, staffRoles, actingModes, false, true, model.TierFastCheap},
	{DeleteRecord, "deleteRecord", "Delete record", CategoryAdmin, PermAdmin, adminOnly, []Mode{ModeChat}, false, true, model.TierFastCheap},
	{ExportStudentData, "exportStudentData", "Export student data", CategoryAdmin, PermAdmin, adminOnly, []Mode{ModeChat, ModeReview}, true, true, model.TierLargeContext},
}

// Both conversions overflow at compile time unless every ToolID has exactly one descriptor.
const (
	_ = uint(len(descriptors) - int(toolCount))
	_ = uint(int(toolCount) - len(descriptors))
)

var byName = func() map[string]ToolID {
	m := make(map[string]ToolID, len(descriptors))
	for _, d := range descriptors {
		m[d.Name] = d.ID
	}
	return m
}()

// String returns the tool name.
func (id ToolID) String() string {
	if !id.Valid() {
		return "unknown"
	}
	return descriptors[id].Name
}

// Valid reports whether id names a catalogued tool.
func (id ToolID) Valid() bool {
	return id >= 0 && id < toolCount
}

// Descriptor returns the tool's metadata.
func (id ToolID) Descriptor() Descriptor {
	return descriptors[id]
}

// Lookup resolves a tool name.
func Lookup(name string) (ToolID, bool) {
	id, ok := byName[name]
	return id, ok
}

// All returns every tool in catalog order.
func All() []ToolID {
	ids := make([]ToolID, toolCount)
	for i := range ids {
		ids[i] = ToolID(i)
	}
	return ids
}

// Descriptors returns a copy of every descriptor in catalog order.
func Descriptors() []Descriptor {
	return slices.Clone(descriptors[:])
}

// Catalog answers tool metadata questions for the model router.
type Catalog struct{}

// ToolPII reports whether the named tool touches PII. ok is false for unknown tools.
func (Catalog) ToolPII(name string) (hasPII, ok bool) {
	id, found := Lookup(name)
	if !found {
		return false, false
	}
	return descriptors[id].HasPII, true
}

// ToolTier returns the named tool's preferred tier.
func (Catalog) ToolTier(name string) (model.Tier, bool) {
	id, found := Lookup(name)
	if !found {
		return "", false
	}
	return descriptors[id].Tier, true
}

func (d Descriptor) allowsRole(r Role) bool {
	return slices.Contains(d.Roles, r)
}

func (d Descriptor) allowsMode(m Mode) bool {
	return slices.Contains(d.Modes, m)
}
