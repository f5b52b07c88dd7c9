package domain

import "crewline/internal/status"

type Project struct {
	ID              string               `json:"id"`
	ClientID        string               `json:"client_id"`
	AssignedTo      *string              `json:"assigned_to,omitempty"`
	Title           string               `json:"title"`
	Description     string               `json:"description,omitempty"`
	Budget          float64              `json:"budget"`
	Status          status.ProjectStatus `json:"status" enum:"open,assigned,in_progress,work_submitted,work_revision_requested,work_approved,completed,archived,cancelled,disputed"`
	WorkState       *status.WorkState    `json:"work_state,omitempty" enum:"pending_review,approved,revision_requested"`
	WorkArtifact    *string              `json:"work_artifact,omitempty"`
	RevisionNotes   *string              `json:"revision_notes,omitempty"`
	WorkSubmittedAt *string              `json:"work_submitted_at,omitempty" format:"date-time"`
	WorkReviewedAt  *string              `json:"work_reviewed_at,omitempty" format:"date-time"`
	CreatedAt       string               `json:"created_at" format:"date-time"`
	UpdatedAt       string               `json:"updated_at" format:"date-time"`
	CompletedAt     *string              `json:"completed_at,omitempty" format:"date-time"`
}

// Assignee returns the assigned professional or "".
func (p Project) Assignee() string {
	if p.AssignedTo == nil {
		return ""
	}
	return *p.AssignedTo
}

type Application struct {
	ID             string                   `json:"id"`
	ProjectID      string                   `json:"project_id"`
	ProfessionalID string                   `json:"professional_id"`
	Status         status.ApplicationStatus `json:"status" enum:"pending,accepted,rejected"`
	Proposal       string                   `json:"proposal,omitempty"`
	CreatedAt      string                   `json:"created_at" format:"date-time"`
	UpdatedAt      string                   `json:"updated_at" format:"date-time"`
}

// Role is the marketplace side an actor is acting on.
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient, RoleProfessional, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

type Review struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	ClientID       string `json:"client_id"`
	ProfessionalID string `json:"professional_id"`
	ReviewerID     string `json:"reviewer_id"`
	ReviewerRole   Role   `json:"reviewer_role" enum:"client,professional"`
	Rating         int    `json:"rating" minimum:"1" maximum:"5"`
	Comment        string `json:"comment,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// Payment rows are written by an external processor; crewline only reads them.
type Payment struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	ClientID       string  `json:"client_id"`
	ProfessionalID *string `json:"professional_id,omitempty"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"client,professional,admin"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
