package printer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	deviatesStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	acceptedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	unsetCellValue = "-"
)

// CompareTable renders a compare view as one table per subsection. Columns are
// the field, the Requirement value, one column per Offered party and AsBuilt.
// Deviating values are marked with "!" and accepted variances with "✓".
func CompareTable(data *lifecycle.CompareData) string {
	headers := []string{"FIELD", "REQUIREMENT"}
	for _, ref := range data.Offered {
		headers = append(headers, "OFFERED "+ref.PartyID)
	}
	if data.AsBuilt != nil {
		headers = append(headers, "AS BUILT")
	}

	var b strings.Builder
	for i, section := range data.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sectionStyle.Render(section.Title))
		b.WriteString("\n")

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(headers...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		for _, row := range section.Rows {
			cells := []string{fieldLabel(row), valueOrDash(row.Requirement)}
			for _, c := range row.Offered {
				cells = append(cells, compareCell(c))
			}
			if row.AsBuilt != nil {
				cells = append(cells, compareCell(*row.AsBuilt))
			}
			t.Row(cells...)
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	return b.String()
}

func fieldLabel(row lifecycle.CompareRow) string {
	if row.UOM != "" {
		return fmt.Sprintf("%s [%s]", row.Label, row.UOM)
	}
	return row.Label
}

func valueOrDash(v *string) string {
	if v == nil || *v == "" {
		return unsetCellValue
	}
	return *v
}

// compareCell shows a value with its review state.
func compareCell(c lifecycle.CompareCell) string {
	text := valueOrDash(c.Value)
	if c.Variance != nil {
		switch *c.Variance {
		case datasheet.VarianceDeviatesAccepted:
			return acceptedStyle.Render(text + " ✓")
		case datasheet.VarianceDeviatesRejected:
			return deviatesStyle.Render(text + " ✗")
		}
	}
	if c.Deviates {
		return deviatesStyle.Render(text + " !")
	}
	return text
}
