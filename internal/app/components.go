package app

import (
	"github.com/memberhub/roster-sync/internal/reconcile"
	"github.com/memberhub/roster-sync/internal/scheduler"
	"github.com/memberhub/roster-sync/internal/service"
	"github.com/memberhub/roster-sync/internal/status"
	"github.com/memberhub/roster-sync/internal/store"
)

// AppComponents groups the wired application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	Repository store.Repository
	Status     status.Persistence
	Runner     reconcile.Runner
	Scheduler  *scheduler.Scheduler
	RunService service.RunService
}
