package report

// CrisisSummary is the per-crisis line of the run summary.
type CrisisSummary struct {
	ID      string
	Name    string
	Query   string
	Matches int
	New     int
	Updated int
	Dropped int
	Skipped int
	Error   string
}

// Statistics generates summary stats
func Statistics(rows []Row) map[string]any {
	stats := make(map[string]any)

	byStatus := make(map[string]int)
	byCrisis := make(map[string]int)
	byEditor := make(map[string]int)

	for _, row := range rows {
		byStatus[row[ColumnStatus]]++
		byCrisis[row[ColumnCrisisName]]++
		if editor := row[ColumnUpdatedBy]; editor != "" {
			byEditor[editor]++
		}
	}

	stats["total"] = len(rows)
	stats["new"] = byStatus["new"]
	stats["updated"] = byStatus["updated"]
	stats["by_status"] = byStatus
	stats["by_crisis"] = byCrisis
	stats["by_editor"] = byEditor
	return stats
}
