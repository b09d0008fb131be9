package access

import "github.com/gartstein/eagle/internal/taskmgr/models"

// Stats counts tasks per status and per priority.
func Stats(tasks []models.Task) models.TaskStats {
	stats := models.TaskStats{
		Total:      len(tasks),
		ByPriority: make(map[models.Priority]int, len(models.Priorities)),
	}
	for _, p := range models.Priorities {
		stats.ByPriority[p] = 0
	}

	for _, t := range tasks {
		switch t.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusCompleted:
			stats.Completed++
		}
		if _, ok := stats.ByPriority[t.Priority]; ok {
			stats.ByPriority[t.Priority]++
		}
	}
	return stats
}
