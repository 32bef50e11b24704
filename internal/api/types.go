package api

import (
	"time"

	"github.com/memberhub/roster-sync/internal/membership"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TriggerResponse is returned when a manual run is accepted.
type TriggerResponse struct {
	RunID string `json:"runId"`
}

// MemberResponse is the API view of a member.
type MemberResponse struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenantId"`
	NationalID       string            `json:"nationalId"`
	HolderNationalID string            `json:"holderNationalId,omitempty"`
	Name             string            `json:"name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	BirthDate        string            `json:"birthDate,omitempty"`
	PostalCode       string            `json:"postalCode,omitempty"`
	Address          AddressResponse   `json:"address"`
	Status           membership.Status `json:"status"`
	RemotelySourced  bool              `json:"remotelySourced"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// AddressResponse is the API view of a postal address.
type AddressResponse struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}

func newMemberResponse(m membership.Member) MemberResponse {
	resp := MemberResponse{
		ID:               m.ID,
		TenantID:         m.TenantID,
		NationalID:       m.NationalID,
		HolderNationalID: m.HolderNationalID,
		Name:             m.Name,
		Email:            m.Email,
		Phone:            m.Phone,
		PostalCode:       m.PostalCode,
		Address:          AddressResponse(m.Address),
		Status:           m.Status,
		RemotelySourced:  m.RemotelySourced,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.BirthDate != nil {
		resp.BirthDate = m.BirthDate.Format(time.DateOnly)
	}
	return resp
}
