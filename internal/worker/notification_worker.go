package worker

import (
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartHistoryWorker registers the audit trail recorder.
func StartHistoryWorker(recorder *service.HistoryRecorder, dispatcher events.Dispatcher) {
	if recorder == nil {
		return
	}
	recorder.RegisterHandlers(dispatcher)
}
