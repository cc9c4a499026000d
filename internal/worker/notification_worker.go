package worker

import (
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/service"
)

// StartNotificationWorker registers notification handlers and wires stats
// cache invalidation onto the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, statsService *service.StatsService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if statsService != nil {
		statsService.RegisterInvalidation(dispatcher)
	}
}
