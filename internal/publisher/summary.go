package publisher

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"episode-publisher/internal/models"
)

// Summary records the outcome of every file considered by one pass, in scan
// order.
type Summary struct {
	results []models.FileResult
}

func (s *Summary) add(result models.FileResult) {
	s.results = append(s.results, result)
}

// Results returns the per-file outcomes.
func (s Summary) Results() []models.FileResult {
	return append([]models.FileResult(nil), s.results...)
}

// Total is the number of files considered.
func (s Summary) Total() int {
	return len(s.results)
}

// Count returns how many files ended with status.
func (s Summary) Count(status models.Status) int {
	n := 0
	for _, r := range s.results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Render writes the summary as a table. Styled output adds box drawing and
// colours and is meant for terminals.
func (s Summary) Render(w io.Writer, styled bool) {
	if len(s.results) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"File", "Status", "Title", "Detail"})
	for _, r := range s.results {
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		status := string(r.Status)
		if styled {
			status = statusColors(r.Status).Sprint(status)
		}
		tw.AppendRow(table.Row{r.Filename, status, r.Title, detail})
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d files", len(s.results)),
		fmt.Sprintf("%d added", s.Count(models.StatusAdded)),
		fmt.Sprintf("%d skipped", s.Count(models.StatusSkipped)),
		fmt.Sprintf("%d failed", s.Count(models.StatusFailed)),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60},
	})

	if styled {
		tw.SetStyle(table.StyleLight)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.Render()
}

func statusColors(status models.Status) text.Colors {
	switch status {
	case models.StatusAdded:
		return text.Colors{text.FgGreen}
	case models.StatusFailed:
		return text.Colors{text.FgRed}
	case models.StatusPending:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgHiBlack}
	}
}
