// Package seed loads tenant definitions from a YAML file into the
// membership store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/store"
)

// TenantSpec is one entry of a tenants file.
type TenantSpec struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Status          string `yaml:"status,omitempty"`
	RemotelySourced *bool  `yaml:"remotelySourced,omitempty"`
	Token           string `yaml:"token,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
}

type tenantsFile struct {
	Tenants []TenantSpec `yaml:"tenants"`
}

// LoadFile reads and validates a tenants file.
func LoadFile(path string) ([]membership.Tenant, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a tenants document. Tenants default to active and remotely
// sourced. A tokenFile is read relative to the working directory.
func Parse(data []byte) ([]membership.Tenant, error) {
	var doc tenantsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tenants file: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Tenants))
	tenants := make([]membership.Tenant, 0, len(doc.Tenants))
	for i, spec := range doc.Tenants {
		tenant, err := spec.toTenant()
		if err != nil {
			return nil, fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if _, dup := seen[tenant.ID]; dup {
			return nil, fmt.Errorf("tenants[%d]: duplicate id %q", i, tenant.ID)
		}
		seen[tenant.ID] = struct{}{}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

func (s TenantSpec) toTenant() (membership.Tenant, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return membership.Tenant{}, errors.New("id is required")
	}

	tenant := membership.Tenant{
		ID:              id,
		Name:            strings.TrimSpace(s.Name),
		Status:          membership.StatusActive,
		RemotelySourced: true,
		RemoteToken:     strings.TrimSpace(s.Token),
	}
	if s.Status != "" {
		tenant.Status = membership.Status(strings.ToUpper(s.Status))
		if !tenant.Status.Valid() {
			return membership.Tenant{}, fmt.Errorf("unknown status %q", s.Status)
		}
	}
	if s.RemotelySourced != nil {
		tenant.RemotelySourced = *s.RemotelySourced
	}

	if s.TokenFile != "" {
		if tenant.RemoteToken != "" {
			return membership.Tenant{}, errors.New("token and tokenFile are mutually exclusive")
		}
		raw, err := os.ReadFile(filepath.Clean(s.TokenFile))
		if err != nil {
			return membership.Tenant{}, fmt.Errorf("failed to read token file: %w", err)
		}
		tenant.RemoteToken = strings.TrimSpace(string(raw))
	}
	return tenant, nil
}

// Apply writes tenants to repo and returns how many were stored.
func Apply(ctx context.Context, repo store.Repository, tenants []membership.Tenant) (int, error) {
	for i, tenant := range tenants {
		if _, err := repo.PutTenant(ctx, tenant); err != nil {
			return i, fmt.Errorf("failed to store tenant %s: %w", tenant.ID, err)
		}
		slog.DebugContext(ctx, "Seeded tenant",
			"tenant_id", tenant.ID,
			"eligible", tenant.IsEligible())
	}
	return len(tenants), nil
}
