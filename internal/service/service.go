// Package service exposes the operational view of the reconciliation
// engine to the HTTP API: readiness, run history, manual triggers and
// member lookups.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/scheduler"
	"github.com/memberhub/roster-sync/internal/status"
	"github.com/memberhub/roster-sync/internal/store"
)

var (
	// ErrRunInProgress is returned by TriggerRun while a run is executing.
	ErrRunInProgress = scheduler.ErrRunInProgress
	// ErrNoRuns is returned by LatestRun before the first run is recorded.
	ErrNoRuns = errors.New("no reconciliation run recorded")
	// ErrMemberNotFound is returned by GetMember for an unknown national id.
	ErrMemberNotFound = errors.New("member not found")
	// ErrInvalidNationalID is returned by GetMember for a key without digits.
	ErrInvalidNationalID = errors.New("national id must contain digits")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go RunService

// RunService defines the operations behind the ops API.
type RunService interface {
	// CheckReadiness reports whether the store is reachable.
	CheckReadiness(ctx context.Context) error

	// LatestRun returns the most recent run record.
	LatestRun(ctx context.Context) (*status.RunStatus, error)

	// TriggerRun starts a run in the background and returns its id.
	TriggerRun(ctx context.Context) (string, error)

	// GetMember returns a member by national id.
	GetMember(ctx context.Context, nationalID string) (membership.Member, error)
}

// Triggerer starts background runs.
type Triggerer interface {
	Trigger(trigger status.Trigger) (string, error)
}

type runService struct {
	repo        store.Repository
	persistence status.Persistence
	triggerer   Triggerer
}

var _ RunService = (*runService)(nil)

// New creates the default RunService.
func New(repo store.Repository, persistence status.Persistence, triggerer Triggerer) RunService {
	return &runService{
		repo:        repo,
		persistence: persistence,
		triggerer:   triggerer,
	}
}

func (s *runService) CheckReadiness(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

func (s *runService) LatestRun(ctx context.Context) (*status.RunStatus, error) {
	run, err := s.persistence.LoadLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	if run == nil {
		return nil, ErrNoRuns
	}
	return run, nil
}

func (s *runService) TriggerRun(_ context.Context) (string, error) {
	return s.triggerer.Trigger(status.TriggerManual)
}

func (s *runService) GetMember(ctx context.Context, nationalID string) (membership.Member, error) {
	key := membership.Digits(nationalID)
	if key == "" {
		return membership.Member{}, ErrInvalidNationalID
	}

	m, err := s.repo.GetMember(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return membership.Member{}, fmt.Errorf("%w: %s", ErrMemberNotFound, key)
	}
	return m, err
}
