package tools

import (
	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// FilterOptions narrows the authorized tool set further.
type FilterOptions struct {
	IncludeAdmin bool `json:"include_admin,omitempty"`
	ExcludeWrite bool `json:"exclude_write,omitempty"`
	OnlyRead     bool `json:"only_read,omitempty"`
}

// Validate rejects contradictory options.
func (o FilterOptions) Validate() error {
	if o.ExcludeWrite && o.OnlyRead {
		return apperrors.NewBuilder(apperrors.CodeInvalidFilterOptions, "exclude_write and only_read are mutually exclusive").
			Validation().
			WithSuggestion("Set only one of exclude_write or only_read").
			Build()
	}
	return nil
}

// IsAuthorized reports whether role may call the named tool. Unknown tools
// are never authorized. An empty mode skips the mode check.
func IsAuthorized(role Role, name string, mode Mode) bool {
	id, ok := Lookup(name)
	if !ok {
		return false
	}
	return id.AuthorizedFor(role, mode)
}

// AuthorizedFor reports whether role, in mode, may call the tool.
func (id ToolID) AuthorizedFor(role Role, mode Mode) bool {
	if !id.Valid() {
		return false
	}
	d := descriptors[id]
	if !d.allowsRole(role) {
		return false
	}
	if mode != "" && !d.allowsMode(mode) {
		return false
	}
	return true
}

// FilterTools returns the candidates that role may call in mode and that pass
// opts. The result keeps catalog order and has no duplicates, so the same
// inputs always yield the same tool set.
func FilterTools(candidates []ToolID, role Role, mode Mode, opts FilterOptions) ([]ToolID, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var want [toolCount]bool
	for _, id := range candidates {
		if id.Valid() {
			want[id] = true
		}
	}

	out := make([]ToolID, 0, len(candidates))
	for i := range want {
		id := ToolID(i)
		if !want[i] || !id.AuthorizedFor(role, mode) {
			continue
		}
		d := descriptors[id]
		if d.Permission == PermAdmin && !opts.IncludeAdmin {
			continue
		}
		if opts.ExcludeWrite && d.Permission == PermWrite {
			continue
		}
		if opts.OnlyRead && d.Permission != PermRead {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// FilterNames is FilterTools over tool names. Unknown names are dropped.
func FilterNames(candidates []string, role Role, mode Mode, opts FilterOptions) ([]string, error) {
	ids := make([]ToolID, 0, len(candidates))
	for _, name := range candidates {
		if id, ok := Lookup(name); ok {
			ids = append(ids, id)
		}
	}
	filtered, err := FilterTools(ids, role, mode, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(filtered))
	for i, id := range filtered {
		names[i] = id.String()
	}
	return names, nil
}
