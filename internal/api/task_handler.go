package api

import (
	"net/http"
	"strconv"
)

// ListTasks возвращает запланированные задачи процесса.
// GET /api/v1/tasks?tenant_id=...&account_id=...&limit=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tenantID, ok := optionalID(w, query.Get("tenant_id"), "tenant_id")
	if !ok {
		return
	}
	accountID, ok := optionalID(w, query.Get("account_id"), "account_id")
	if !ok {
		return
	}
	limit := parseIntDefault(query.Get("limit"), 100)

	result := []TaskResponse{}
	for _, info := range h.tasks.Snapshot() {
		if tenantID != 0 && info.Key.TenantID() != tenantID {
			continue
		}
		if accountID != 0 && info.Key.AccountID() != accountID {
			continue
		}
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, TaskFromInfo(info))
	}

	List(w, result, len(result))
}

// optionalID разбирает необязательный положительный идентификатор.
// 0 означает отсутствие фильтра.
func optionalID(w http.ResponseWriter, s, name string) (int, bool) {
	if s == "" {
		return 0, true
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		BadRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

// parseIntDefault парсит строку в int с дефолтным значением.
func parseIntDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
