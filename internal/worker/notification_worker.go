// Package worker wires the event subscribers that run alongside request handling.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/realtime"
	"github.com/spec-kit/station-helpdesk/internal/service"
)

// StartNotificationWorker registers notification persistence and the live
// broadcaster on the dispatcher. Notification handlers run first so a
// recipient's inbox is written before the matching live frame goes out.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, broadcaster *realtime.Broadcaster) {
	if dispatcher == nil {
		return
	}
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if broadcaster != nil {
		broadcaster.RegisterHandlers(dispatcher)
	}
}

// StartRealtimeRelay runs the Redis relay subscriber until ctx is cancelled.
func StartRealtimeRelay(ctx context.Context, relay *realtime.RedisRelay, logger *zap.Logger) {
	if relay == nil {
		return
	}
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("realtime relay stopped", zap.Error(err))
		}
	}()
}
