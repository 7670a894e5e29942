package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/eihwaz/internal/models"
)

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Validate validates the request.
func (r CreateProjectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Name, validation.Length(0, 256)),
	)
}

// AppendNodeRequest is the request body for appending a message node.
type AppendNodeRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
}

// Validate validates the request.
func (r AppendNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In("user", "assistant", "system")),
		validation.Field(&r.Content, validation.Required),
	)
}

// CreateBranchRequest is the request body for creating a branch.
type CreateBranchRequest struct {
	Name string `json:"name"`
	From string `json:"from,omitempty"`
}

// Validate validates the request.
func (r CreateBranchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

// SwitchBranchRequest is the request body for switching branches.
type SwitchBranchRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r SwitchBranchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
	)
}

// MergeRequest is the request body for merging a branch into the current one.
type MergeRequest struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
}

// Validate validates the request.
func (r MergeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Summary, validation.Required),
	)
}

// UpdateArtefactRequest is the request body for replacing the artefact.
type UpdateArtefactRequest struct {
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
}

// LedgerResponse wraps a ledger view.
type LedgerResponse struct {
	Nodes []models.NodeRecord `json:"nodes"`
	Total int                 `json:"total"`
}

// BranchListResponse wraps branch summaries.
type BranchListResponse struct {
	Branches []models.BranchSummary `json:"branches"`
}

// ArtefactResponse carries artefact content and its checksum.
type ArtefactResponse struct {
	Content  string `json:"content"`
	Checksum string `json:"checksum"`
}
