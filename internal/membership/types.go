// Package membership holds the domain types shared by the roster
// reconciliation engine: tenants, members and their lifecycle statuses.
package membership

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a tenant or a member.
type Status string

const (
	// StatusActive marks a record in good standing.
	StatusActive Status = "ACTIVE"
	// StatusInactive marks a record that is no longer current.
	StatusInactive Status = "INACTIVE"
	// StatusDeleted marks a soft-deleted record.
	StatusDeleted Status = "DELETED"
	// StatusDefaulting marks a member with overdue payments.
	StatusDefaulting Status = "DEFAULTING"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted, StatusDefaulting:
		return true
	}
	return false
}

// Tenant is a client organisation whose members may be sourced from the
// remote roster system.
type Tenant struct {
	ID              string
	Name            string
	Status          Status
	RemotelySourced bool
	// RemoteToken is the bearer credential for the remote roster API.
	// Empty when the tenant has none.
	RemoteToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsEligible reports whether the tenant takes part in reconciliation runs:
// it must be active, remotely sourced and hold a non-blank token.
func (t Tenant) IsEligible() bool {
	return t.Status == StatusActive &&
		t.RemotelySourced &&
		strings.TrimSpace(t.RemoteToken) != ""
}

// Address is the postal address of a member.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
}

// Member is a person belonging to a tenant. NationalID is unique across
// all tenants.
type Member struct {
	ID               string
	TenantID         string
	NationalID       string
	HolderNationalID string
	Name             string
	Email            string
	Phone            string
	BirthDate        *time.Time
	PostalCode       string
	Address          Address
	Status           Status
	RemotelySourced  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
