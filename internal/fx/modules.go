package fx

import (
	"court-watcher/internal/api"
	"court-watcher/internal/config"
	"court-watcher/internal/database"
	"court-watcher/internal/logger"
	"court-watcher/internal/notifier"
	"court-watcher/internal/repository"
	"court-watcher/internal/scheduler"
	"court-watcher/internal/server"
	"court-watcher/internal/service"

	"go.uber.org/fx"
)

func provideFetcher(client *api.RecClient) service.SnapshotFetcher {
	return client
}

func provideNotifier(email *notifier.EmailNotifier) notifier.Notifier {
	return email
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewLocationRepository),
	fx.Provide(repository.NewSlotRepository),
	fx.Provide(repository.NewWatchRepository),
	fx.Provide(repository.NewAlertRepository),
	fx.Provide(repository.NewStatusRepository),
	// api client + notifier
	fx.Provide(api.NewRecClient),
	fx.Provide(provideFetcher),
	fx.Provide(notifier.NewEmailNotifier),
	fx.Provide(provideNotifier),
	// svc
	fx.Provide(service.NewNormalizer),
	fx.Provide(service.NewReconciler),
	fx.Provide(service.NewAlertService),
	fx.Provide(service.NewWatchService),
	fx.Provide(service.NewAvailabilityService),
	// worker + server
	fx.Provide(scheduler.NewWorker),
	fx.Provide(server.New),
)
