package server

import (
	"crewline/internal/dashboard"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/reconcile"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description string  `json:"description,omitempty"`
	Budget      float64 `json:"budget,omitempty" minimum:"0"`
}

type ApplyRequest struct {
	Proposal string `json:"proposal,omitempty"`
}

type DecisionRequest struct {
	Outcome string `json:"outcome" enum:"accept,reject"`
}

type SubmitWorkRequest struct {
	ArtifactRef string `json:"artifact_ref" minLength:"1"`
}

type RevisionRequest struct {
	Notes string `json:"notes" minLength:"1"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating" minimum:"1" maximum:"5"`
	Comment string `json:"comment,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"client,professional,admin"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"client,professional,admin"`
}

// Responses

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Store  string `json:"store,omitempty" example:"closed"`
}

type ListProjectsResponse struct {
	Items []domain.Project `json:"items"`
}

type ListApplicationsResponse struct {
	Items []domain.Application `json:"items"`
}

type ListEventsResponse struct {
	Items []domain.Event `json:"items"`
}

type ListNotificationsResponse struct {
	Items []domain.Notification `json:"items"`
}

type DecisionResponse = engine.DecisionResult

type ReviewResponse = engine.ReviewResult

type ReconcileResponse = engine.ReconcileResult

type ReconcileAllResponse = reconcile.Summary

type DashboardResponse struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
	dashboard.Snapshot
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is only returned on creation.
	Key string `json:"key,omitempty"`
}

type ListAPIKeysResponse struct {
	Items []APIKeyResponse `json:"items"`
}

type WhoAmIResponse struct {
	ActorID     string      `json:"actor_id"`
	Role        domain.Role `json:"role"`
	Source      string      `json:"source"`
	Permissions []string    `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Role: k.Role, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type projectBody = domain.Project

type applicationBody = domain.Application

// domainRole maps a validated request role onto domain.Role; unknown values
// pass through and fail permission checks downstream.
func domainRole(s string) domain.Role {
	if r, ok := domain.ParseRole(s); ok {
		return r
	}
	return domain.Role(s)
}
