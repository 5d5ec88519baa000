package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/decentraland/editor-sdk6-sub000/internal/api/models"
	"github.com/decentraland/editor-sdk6-sub000/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of server lifecycle, process and port events. The first message is a snapshot of all servers.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"servers":              models.ServerListData{},
		"server-state-changed": events.ServerStateChangedEvent{},
		"server-crashed":       events.ServerCrashedEvent{},
		"server-removed":       events.ServerRemovedEvent{},
		"process-spawned":      events.ProcessSpawnedEvent{},
		"process-exited":       events.ProcessExitedEvent{},
		"port-reserved":        events.PortReservedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ServerStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerCrashedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerRemovedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessSpawnedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessExitedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PortReservedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Snapshot first so clients never miss the current state.
		if err := send.Data(s.serverList()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
