package models

// ServerData is the API view of a supervised server.
type ServerData struct {
	Name      string `json:"name" example:"preview" doc:"Logical server name"`
	State     string `json:"state" enum:"idle,starting,running,stopping" example:"running" doc:"Lifecycle state"`
	Port      int    `json:"port,omitempty" example:"4123" doc:"Reserved port while running"`
	PID       int    `json:"pid,omitempty" example:"51234" doc:"Process ID for process-backed servers"`
	StartedAt string `json:"started_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"When the running instance started"`
	LastError string `json:"last_error,omitempty" example:"wait for preview ready: context deadline exceeded" doc:"Most recent start failure or crash"`
}

type ServerListData struct {
	Servers []ServerData `json:"servers" doc:"Configured servers sorted by name"`
	Count   int          `json:"count" example:"2" doc:"Number of configured servers"`
}

type ServerListResponse struct {
	Body ServerListData
}

type ServerResponse struct {
	Body ServerData
}

// ServerInput addresses a single server.
type ServerInput struct {
	Name string `path:"name" example:"preview" doc:"Logical server name"`
}

type ServerActionData struct {
	Args []string `json:"args,omitempty" doc:"Extra arguments passed to the server on start"`
}

// ServerActionInput addresses a server and carries optional start arguments.
type ServerActionInput struct {
	Name string           `path:"name" example:"preview" doc:"Logical server name"`
	Body ServerActionData `required:"false"`
}

type ServerLogsInput struct {
	Name  string `path:"name" example:"preview" doc:"Logical server name"`
	Limit int    `query:"limit" default:"200" minimum:"0" maximum:"10000" doc:"Maximum number of entries, 0 for all buffered"`
}

type ServerLogsData struct {
	Name    string         `json:"name" example:"preview" doc:"Logical server name"`
	Entries []LogEntryData `json:"entries" doc:"Buffered output lines, oldest first"`
	Count   int            `json:"count" example:"20" doc:"Number of entries returned"`
}

type ServerLogsResponse struct {
	Body ServerLogsData
}
