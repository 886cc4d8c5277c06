package domain

// Event — минимальная идентичность изменённого календарного события,
// передаваемая в хук пересчёта напоминаний.
type Event struct {
	ID     string `json:"id"`
	Folder string `json:"folder,omitempty"`
}

// EventIDs возвращает идентификаторы событий в исходном порядке.
func EventIDs(events []Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
