package events

// Event type constants for kelindar/event.
const (
	TypeServerStateChanged uint32 = iota + 1
	TypeServerCrashed
	TypeServerRemoved
	TypeProcessSpawned
	TypeProcessExited
	TypePortReserved
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ServerStateChangedEvent is published on every supervisor transition.
type ServerStateChangedEvent struct {
	Name      string `json:"name" example:"preview" doc:"Logical server name"`
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServerStateChangedEvent.
func (e ServerStateChangedEvent) Type() uint32 { return TypeServerStateChanged }

// ServerCrashedEvent is published when a running server exits on its own.
type ServerCrashedEvent struct {
	Name      string `json:"name" example:"preview" doc:"Logical server name"`
	Error     string `json:"error" example:"process preview exited with code 1" doc:"Exit reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServerCrashedEvent.
func (e ServerCrashedEvent) Type() uint32 { return TypeServerCrashed }

// ServerRemovedEvent is published when a config reload drops a server.
type ServerRemovedEvent struct {
	Name      string `json:"name" example:"preview" doc:"Logical server name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServerRemovedEvent.
func (e ServerRemovedEvent) Type() uint32 { return TypeServerRemoved }

// ProcessSpawnedEvent is published after a process starts.
type ProcessSpawnedEvent struct {
	ID        string `json:"id" example:"preview" doc:"Process identifier"`
	PID       int    `json:"pid" example:"4242" doc:"OS process id"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessSpawnedEvent.
func (e ProcessSpawnedEvent) Type() uint32 { return TypeProcessSpawned }

// ProcessExitedEvent is published once per process when it is dead.
type ProcessExitedEvent struct {
	ID        string `json:"id" example:"preview" doc:"Process identifier"`
	PID       int    `json:"pid" example:"4242" doc:"OS process id"`
	Code      int    `json:"code" example:"0" doc:"Exit code, -1 when killed by a signal"`
	Outcome   string `json:"outcome" example:"graceful" doc:"exited, graceful or forced"`
	Killed    bool   `json:"killed" example:"true" doc:"Whether the exit was requested"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }

// PortReservedEvent is published when the OS hands out a new port.
type PortReservedEvent struct {
	Name      string `json:"name" example:"preview" doc:"Logical server name"`
	Port      int    `json:"port" example:"41234" doc:"Reserved port"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PortReservedEvent.
func (e PortReservedEvent) Type() uint32 { return TypePortReserved }

// LogEntryEvent carries one buffered log record to SSE clients.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"proc" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
