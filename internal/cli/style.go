package cli

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyanStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

func statusStyle(s jobs.Status) lipgloss.Style {
	switch s {
	case jobs.StatusSucceeded:
		return greenStyle
	case jobs.StatusFailed, jobs.StatusUnrecoverable:
		return redStyle
	case jobs.StatusWorking, jobs.StatusRetrying:
		return cyanStyle
	default:
		return yellowStyle
	}
}

func renderAlert(a alerts.Alert) string {
	var style lipgloss.Style
	switch a.Type {
	case alerts.LevelError:
		style = redStyle
	case alerts.LevelWarn:
		style = yellowStyle
	case alerts.LevelSuccess:
		style = greenStyle
	default:
		style = cyanStyle
	}
	return style.Render(string(a.Type)) + " " + a.Message
}

func yesNo(b bool) string {
	if b {
		return greenStyle.Render("yes")
	}
	return redStyle.Render("no")
}

// renderRows lays the job table out in aligned columns.
func renderRows(rows []jobs.Row, now time.Time) string {
	if len(rows) == 0 {
		return dimStyle.Render("No uploads yet.")
	}

	header := []string{"NAME", "STATUS", "PROGRESS", "CREATED", "JOB ID"}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		progress := r.Progress
		if progress == "" {
			progress = "-"
		}
		created := "-"
		if !r.Created.IsZero() {
			created = humanize.RelTime(r.Created, now, "ago", "from now")
		}
		jobID := r.JobID
		if r.Pending {
			jobID = dimStyle.Render("(pending)")
		}
		cells = append(cells, []string{r.Name, string(r.Status), progress, created, jobID})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	var b strings.Builder
	b.WriteString(renderLine(header, widths, func(int, string) lipgloss.Style { return headerStyle }))
	for i, row := range cells {
		status := rows[i].Status
		b.WriteString("\n")
		b.WriteString(renderLine(row, widths, func(col int, _ string) lipgloss.Style {
			if col == 1 {
				return statusStyle(status)
			}
			return lipgloss.NewStyle()
		}))
	}
	return b.String()
}

func renderLine(cells []string, widths []int, style func(col int, cell string) lipgloss.Style) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = style(i, c).Width(widths[i] + 2).Render(c)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
}
