package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/decentraland/editor-sdk6-sub000/internal/api/models"
	"github.com/decentraland/editor-sdk6-sub000/internal/logging"
	"github.com/decentraland/editor-sdk6-sub000/internal/supervisor"
)

// registerServerRoutes registers the registry endpoints.
func (s *Server) registerServerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-servers",
		Method:      http.MethodGet,
		Path:        "/api/servers",
		Summary:     "List Servers",
		Description: "Get every configured server with its lifecycle state",
		Tags:        []string{"servers"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ServerListResponse, error) {
		return &models.ServerListResponse{Body: s.serverList()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server",
		Method:      http.MethodGet,
		Path:        "/api/servers/{name}",
		Summary:     "Get Server",
		Description: "Get the status of one server",
		Tags:        []string{"servers"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ServerInput) (*models.ServerResponse, error) {
		sup, err := s.lookup(input.Name)
		if err != nil {
			return nil, err
		}
		return &models.ServerResponse{Body: toServerData(sup.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-server",
		Method:      http.MethodPost,
		Path:        "/api/servers/{name}/start",
		Summary:     "Start Server",
		Description: "Start a server and wait until it is ready. A running instance is stopped first.",
		Tags:        []string{"servers"},
		Errors:      []int{401, 404, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ServerActionInput) (*models.ServerResponse, error) {
		sup, err := s.lookup(input.Name)
		if err != nil {
			return nil, err
		}
		// A client hanging up must not abort a half-started server.
		sup.Start(context.WithoutCancel(ctx), input.Body.Args...)
		return startResult(sup)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-server",
		Method:      http.MethodPost,
		Path:        "/api/servers/{name}/stop",
		Summary:     "Stop Server",
		Description: "Stop a running server and release its port",
		Tags:        []string{"servers"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ServerInput) (*models.ServerResponse, error) {
		sup, err := s.lookup(input.Name)
		if err != nil {
			return nil, err
		}
		sup.Stop(context.WithoutCancel(ctx))
		return &models.ServerResponse{Body: toServerData(sup.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-server",
		Method:      http.MethodPost,
		Path:        "/api/servers/{name}/restart",
		Summary:     "Restart Server",
		Description: "Stop then start a server",
		Tags:        []string{"servers"},
		Errors:      []int{401, 404, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ServerActionInput) (*models.ServerResponse, error) {
		sup, err := s.lookup(input.Name)
		if err != nil {
			return nil, err
		}
		sup.Restart(context.WithoutCancel(ctx), input.Body.Args...)
		return startResult(sup)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server-logs",
		Method:      http.MethodGet,
		Path:        "/api/servers/{name}/logs",
		Summary:     "Server Logs",
		Description: "Get buffered output of a process-backed server",
		Tags:        []string{"servers", "logs"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ServerLogsInput) (*models.ServerLogsResponse, error) {
		if _, err := s.lookup(input.Name); err != nil {
			return nil, err
		}
		entries := serverLogs(input.Name, input.Limit)
		return &models.ServerLogsResponse{
			Body: models.ServerLogsData{
				Name:    input.Name,
				Entries: entries,
				Count:   len(entries),
			},
		}, nil
	})
}

func (s *Server) lookup(name string) (*supervisor.Supervisor, error) {
	sup, ok := s.registry.Get(name)
	if !ok {
		return nil, huma.Error404NotFound("server " + name + " not found")
	}
	return sup, nil
}

func (s *Server) serverList() models.ServerListData {
	statuses := s.registry.List()
	servers := make([]models.ServerData, len(statuses))
	for i, st := range statuses {
		servers[i] = toServerData(st)
	}
	return models.ServerListData{Servers: servers, Count: len(servers)}
}

// startResult maps a failed start to 502. Start records the failure in
// the status instead of returning it.
func startResult(sup *supervisor.Supervisor) (*models.ServerResponse, error) {
	st := sup.Status()
	if st.State == supervisor.StateIdle && st.LastError != nil {
		return nil, huma.Error502BadGateway("server "+st.Name+" failed to start", st.LastError)
	}
	return &models.ServerResponse{Body: toServerData(st)}, nil
}

func toServerData(st supervisor.Status) models.ServerData {
	data := models.ServerData{
		Name:  st.Name,
		State: string(st.State),
		Port:  st.Port,
		PID:   st.PID,
	}
	if !st.StartedAt.IsZero() {
		data.StartedAt = st.StartedAt.Format(time.RFC3339)
	}
	if st.LastError != nil {
		data.LastError = st.LastError.Error()
	}
	return data
}

// serverLogs returns mirrored output lines of the process named name.
func serverLogs(name string, limit int) []models.LogEntryData {
	buffer := logging.GetBuffer()
	if buffer == nil {
		return []models.LogEntryData{}
	}
	entries := buffer.Read(func(e logging.LogEntry) bool {
		return e.Module == "proc" && e.Attributes["process_id"] == name
	}, limit)

	result := make([]models.LogEntryData, len(entries))
	for i, e := range entries {
		result[i] = models.LogEntryData{
			Seq:        e.Seq,
			Timestamp:  e.Timestamp,
			Level:      e.Level,
			Module:     e.Module,
			Message:    e.Message,
			Attributes: e.Attributes,
		}
	}
	return result
}
