package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Alarmd/internal/telemetry"
)

// EventsChanged пересчитывает напоминания изменённых событий аккаунта.
// POST /api/v1/tenants/{tenant}/accounts/{account}/events/changed
func (h *Handler) EventsChanged(w http.ResponseWriter, r *http.Request) {
	tenantID, accountID, ok := h.accountFromPath(w, r)
	if !ok {
		return
	}

	var req EventsChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if len(req.EventIDs) == 0 {
		BadRequest(w, "event_ids is required")
		return
	}
	for _, id := range req.EventIDs {
		if id == "" {
			BadRequest(w, "event_ids must not contain empty ids")
			return
		}
	}

	// Ошибки пересчёта не возвращаются: пропущенное подберёт воркер
	h.hook.CheckAndScheduleTasksForEvents(r.Context(), req.Events(), tenantID, accountID)

	Accepted(w, EventsChangedResponse{Events: len(req.EventIDs)})
}

// DeleteEvent отменяет задачи удалённого события.
// DELETE /api/v1/tenants/{tenant}/accounts/{account}/events/{event}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, accountID, ok := h.accountFromPath(w, r)
	if !ok {
		return
	}

	eventID := r.PathValue("event")
	if eventID == "" {
		BadRequest(w, "invalid event id")
		return
	}

	n := h.canceller.CancelAll(r.Context(), tenantID, accountID, eventID)
	Success(w, CancelResponse{Cancelled: n})
}

// accountFromPath разбирает {tenant} и {account} и проверяет,
// что тенант обслуживается каким-либо шардом.
func (h *Handler) accountFromPath(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	tenantID, err := strconv.Atoi(r.PathValue("tenant"))
	if err != nil || tenantID <= 0 {
		BadRequest(w, "invalid tenant id")
		return 0, 0, false
	}
	accountID, err := strconv.Atoi(r.PathValue("account"))
	if err != nil || accountID <= 0 {
		BadRequest(w, "invalid account id")
		return 0, 0, false
	}

	if h.stores != nil {
		_, err := h.stores.ForTenant(tenantID)
		if HandleRepoError(w, telemetry.FromContext(r.Context()), err, "tenant is not served by any shard") {
			return 0, 0, false
		}
	}
	return tenantID, accountID, true
}
