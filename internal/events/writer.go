package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crewline/internal/domain"
	"crewline/internal/repo"
)

const (
	ProjectCreated        = "project.created"
	ProjectAssigned       = "project.assigned"
	ProjectStarted        = "project.started"
	ProjectCompleted      = "project.completed"
	ProjectArchived       = "project.archived"
	ProjectCancelled      = "project.cancelled"
	ProjectDisputed       = "project.disputed"
	ApplicationCreated    = "application.created"
	ApplicationAccepted   = "application.accepted"
	ApplicationRejected   = "application.rejected"
	WorkSubmitted         = "work.submitted"
	WorkRevisionRequested = "work.revision_requested"
	WorkApproved          = "work.approved"
	ReviewSubmitted       = "review.submitted"
)

type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

type EventPayload map[string]any

// Append writes one event row. The event log is an independent write like any other.
func (w Writer) Append(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.Repo.InsertEvent(ctx, domain.Event{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	})
	return err
}
