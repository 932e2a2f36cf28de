package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"FinCast/internal/domain/models"
	"FinCast/internal/usecase"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Align(lipgloss.Center)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	flatStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

func directionStyle(d string) lipgloss.Style {
	switch d {
	case string(models.DirectionUp):
		return upStyle
	case string(models.DirectionDown):
		return downStyle
	default:
		return flatStyle
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderForecast(p *models.ForecastPayload) string {
	t := newTable("STEP", "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "CONF", "DIR")
	for _, s := range p.Steps {
		t.Row(
			fmt.Sprint(s.Step),
			s.Timestamp.Format("2006-01-02 15:04"),
			s.Open.StringFixed(2),
			s.High.StringFixed(2),
			s.Low.StringFixed(2),
			s.Close.StringFixed(2),
			fmt.Sprintf("%.2f", s.Confidence),
			s.Direction,
		)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s (%s)", p.Symbol, p.Timeframe, p.Mode)))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("overall %s  avg confidence %.2f\n",
		directionStyle(p.Direction).Render(p.Direction), p.AvgConfidence))
	if len(p.Drivers) > 0 {
		b.WriteString(mutedStyle.Render("drivers: " + strings.Join(p.Drivers, ", ")))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("model " + p.ModelVersion))
	return b.String()
}

func renderTrainReport(r *usecase.TrainReport) string {
	t := newTable("FAMILY", "VERSION", "TRAIN", "HOLDOUT", "MAE", "DIR ACC")
	for _, m := range r.Models {
		t.Row(
			string(m.Family),
			m.Version,
			fmt.Sprint(m.Metrics.TrainSamples),
			fmt.Sprint(m.Metrics.HoldoutSamples),
			fmt.Sprintf("%.6f", m.Metrics.MAE),
			fmt.Sprintf("%.1f%%", m.Metrics.DirectionalAccuracy*100),
		)
	}
	out := t.String() + "\n" + mutedStyle.Render(fmt.Sprintf("symbols %s  took %s",
		strings.Join(r.Symbols, ","), r.Duration.Round(time.Millisecond)))
	if len(r.Skipped) > 0 {
		out += "\n" + errorStyle.Render("skipped: "+strings.Join(r.Skipped, ","))
	}
	return out
}
