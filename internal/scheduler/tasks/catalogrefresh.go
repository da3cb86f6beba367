package tasks

import (
	"context"
	"errors"

	"github.com/pkgfetch/pkgfetch/internal/catalog"
	"github.com/pkgfetch/pkgfetch/internal/config"
	"github.com/pkgfetch/pkgfetch/internal/scheduler"
)

// RegisterCatalogRefreshTask registers the periodic catalog reload task.
// A reload already in progress is not an error; the running load's result
// stands and the next scheduled run picks up from there.
func RegisterCatalogRefreshTask(sched *scheduler.Scheduler, svc *catalog.Service, cfg *config.CatalogConfig) error {
	if cfg.RefreshCron == "" {
		return nil
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "catalog-refresh",
		Name:        "Refresh Software Catalogs",
		Description: "Reloads the software update catalog feeds and republishes the installer list",
		Cron:        cfg.RefreshCron,
		RunOnStart:  false, // The server triggers the initial load itself
		Func: func(ctx context.Context) error {
			err := svc.Load(ctx)
			if errors.Is(err, catalog.ErrLoadInProgress) {
				return nil
			}
			return err
		},
	})
}
