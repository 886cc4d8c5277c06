package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))

	// Events
	mux.Handle("POST /api/v1/tenants/{tenant}/accounts/{account}/events/changed", chain(http.HandlerFunc(h.EventsChanged)))
	mux.Handle("DELETE /api/v1/tenants/{tenant}/accounts/{account}/events/{event}", chain(http.HandlerFunc(h.DeleteEvent)))
}
