// Package status holds the canonical project and application state machines.
// Every status value stored or compared anywhere in crewline comes from here;
// display synonyms belong to the presentation layer.
package status

import (
	"errors"
	"fmt"
)

type ProjectStatus string

const (
	Open                  ProjectStatus = "open"
	Assigned              ProjectStatus = "assigned"
	InProgress            ProjectStatus = "in_progress"
	WorkSubmitted         ProjectStatus = "work_submitted"
	WorkRevisionRequested ProjectStatus = "work_revision_requested"
	WorkApproved          ProjectStatus = "work_approved"
	Completed             ProjectStatus = "completed"
	Archived              ProjectStatus = "archived"
	Cancelled             ProjectStatus = "cancelled"
	Disputed              ProjectStatus = "disputed"
)

type ApplicationStatus string

const (
	Pending  ApplicationStatus = "pending"
	Accepted ApplicationStatus = "accepted"
	Rejected ApplicationStatus = "rejected"
)

// WorkState is the work submission state embedded in a project row.
type WorkState string

const (
	WorkPendingReview WorkState = "pending_review"
	WorkApprovedState WorkState = "approved"
	WorkRevisionState WorkState = "revision_requested"
)

// ErrInvalidTransition is matched by every TransitionError.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError reports a status change that is not an edge of the state machine.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

func (e TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var projectEdges = map[ProjectStatus][]ProjectStatus{
	Open:                  {Assigned, Cancelled, Disputed},
	Assigned:              {InProgress, Cancelled, Disputed},
	InProgress:            {WorkSubmitted, Cancelled, Disputed},
	WorkSubmitted:         {WorkRevisionRequested, WorkApproved, Cancelled, Disputed},
	WorkRevisionRequested: {InProgress, WorkSubmitted, Cancelled, Disputed},
	WorkApproved:          {Completed, Cancelled, Disputed},
	Completed:             {Archived, Cancelled, Disputed},
	Disputed:              {Cancelled},
}

var projectOrder = []ProjectStatus{
	Open, Assigned, InProgress, WorkSubmitted, WorkRevisionRequested,
	WorkApproved, Completed, Archived, Cancelled, Disputed,
}

// ProjectStatuses lists every project status in lifecycle order.
func ProjectStatuses() []ProjectStatus {
	out := make([]ProjectStatus, len(projectOrder))
	copy(out, projectOrder)
	return out
}

// ParseProject accepts only canonical values.
func ParseProject(s string) (ProjectStatus, error) {
	for _, st := range projectOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown project status %q", s)
}

func ParseApplication(s string) (ApplicationStatus, error) {
	switch ApplicationStatus(s) {
	case Pending, Accepted, Rejected:
		return ApplicationStatus(s), nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// Targets returns the statuses reachable in one step from from.
func Targets(from ProjectStatus) []ProjectStatus {
	edges := projectEdges[from]
	out := make([]ProjectStatus, len(edges))
	copy(out, edges)
	return out
}

func CanTransitionProject(from, to ProjectStatus) bool {
	for _, next := range projectEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func EnsureProjectTransition(from, to ProjectStatus) error {
	if CanTransitionProject(from, to) {
		return nil
	}
	return TransitionError{Entity: "project", From: string(from), To: string(to)}
}

func CanTransitionApplication(from, to ApplicationStatus) bool {
	return from == Pending && (to == Accepted || to == Rejected)
}

func EnsureApplicationTransition(from, to ApplicationStatus) error {
	if CanTransitionApplication(from, to) {
		return nil
	}
	return TransitionError{Entity: "application", From: string(from), To: string(to)}
}

// IsTerminal reports whether no edge leaves s.
func (s ProjectStatus) IsTerminal() bool {
	return s == Archived || s == Cancelled
}

func (s ApplicationStatus) IsTerminal() bool {
	return s == Accepted || s == Rejected
}

// RequiresAssignee reports whether a project in s must carry a non-null assigned_to.
func RequiresAssignee(s ProjectStatus) bool {
	switch s {
	case Assigned, InProgress, WorkSubmitted, WorkRevisionRequested, WorkApproved, Completed, Archived:
		return true
	}
	return false
}

// Reviewable reports whether mutual reviews may be created for a project in s.
// work_approved is included so a review can finish a delivery that stopped
// before the completed write landed.
func Reviewable(s ProjectStatus) bool {
	return s == WorkApproved || s == Completed || s == Archived
}
