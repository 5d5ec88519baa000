package metrics

import "github.com/decentraland/editor-sdk6-sub000/internal/events"

// Subscribe feeds lifecycle events from bus into the collectors and
// returns a function that detaches them.
func Subscribe(bus *events.Bus) func() {
	unsubscribers := []func(){
		bus.Subscribe(func(events.PortReservedEvent) { ObservePortProbe() }),
		bus.Subscribe(func(events.ProcessSpawnedEvent) { ObserveSpawn() }),
		bus.Subscribe(func(e events.ProcessExitedEvent) { ObserveExit(e.Outcome, e.Code) }),
		bus.Subscribe(func(e events.ServerStateChangedEvent) { ObserveTransition(e.Name, e.To) }),
		bus.Subscribe(func(e events.ServerCrashedEvent) { ObserveCrash(e.Name) }),
		bus.Subscribe(func(e events.ServerRemovedEvent) { DeleteServer(e.Name) }),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}
