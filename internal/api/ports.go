package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/decentraland/editor-sdk6-sub000/internal/api/models"
)

func (s *Server) registerPortRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-ports",
		Method:      http.MethodGet,
		Path:        "/api/ports",
		Summary:     "List Port Reservations",
		Description: "Get the ports currently reserved per server name",
		Tags:        []string{"ports"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.PortsResponse, error) {
		reserved := map[string]int{}
		if s.ports != nil {
			reserved = s.ports.Reserved()
		}
		return &models.PortsResponse{
			Body: models.PortsData{Ports: reserved, Count: len(reserved)},
		}, nil
	})
}
