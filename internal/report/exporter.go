package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed "templates"
var templateFS embed.FS

type Exporter struct {
	OutputDir string
}

func NewExporter(outputDir string) *Exporter {
	return &Exporter{OutputDir: outputDir}
}

func (e *Exporter) ExportJSON(rows []Row, filename string) error {
	data, err := json.MarshalIndent(rows, "", "\t")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(e.OutputDir, filename), data, 0644)
}

// ExportHTML renders the run summary with the rows of every crisis listed
// under it, in configuration order.
func (e *Exporter) ExportHTML(rows []Row, summaries []CrisisSummary, filename string, windowDays int) error {
	funcMap := template.FuncMap{
		"title": cases.Title(language.English).String,
	}
	tmpl, err := template.New("report.tmpl").Funcs(funcMap).ParseFS(templateFS, "templates/report.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	outputPath := filepath.Join(e.OutputDir, filename)
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create HTML file: %w", err)
	}
	defer f.Close()

	rowsByCrisis := make(map[string][]Row)
	for _, row := range rows {
		id := row[ColumnCrisisID]
		rowsByCrisis[id] = append(rowsByCrisis[id], row)
	}

	type CrisisGroup struct {
		Summary CrisisSummary
		Rows    []Row
	}

	groups := make([]CrisisGroup, 0, len(summaries))
	for _, s := range summaries {
		groups = append(groups, CrisisGroup{Summary: s, Rows: rowsByCrisis[s.ID]})
	}

	data := map[string]any{
		"Date":       time.Now().Format("2006-01-02 15:04:05"),
		"Groups":     groups,
		"Stats":      Statistics(rows),
		"WindowDays": windowDays,
		"Columns": map[string]string{
			"Title":       ColumnTitle,
			"URL":         ColumnDatasetURL,
			"Org":         ColumnOrgName,
			"Created":     ColumnCreated,
			"Status":      ColumnStatus,
			"UpdatedWhen": ColumnUpdatedWhen,
			"UpdatedBy":   ColumnUpdatedBy,
		},
	}

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to render HTML: %w", err)
	}

	return nil
}
