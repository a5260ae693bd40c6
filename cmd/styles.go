package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// recompiledLine is printed for every entry written in watch mode.
func recompiledLine(dest string) string {
	return successStyle.Render("[mixpaths]:") + " Recompiled '" + dest + "'"
}

// errorLine labels err with its category. Unresolved references get a hint
// since they are the usual failure while editing templates.
func errorLine(err error) string {
	label := "Error"
	switch {
	case mixerrors.IsTemplate(err):
		label = "Template error"
	case mixerrors.HasErrorType(err, mixerrors.ErrorTypeCycle):
		label = "Dependency cycle"
	case mixerrors.HasErrorType(err, mixerrors.ErrorTypeReference):
		label = "Unresolved reference"
	case mixerrors.HasErrorType(err, mixerrors.ErrorTypeConfig):
		label = "Configuration error"
	}

	line := errorStyle.Render(label+":") + " " + err.Error()
	if mixerrors.HasErrorCode(err, mixerrors.ErrCodeMissingManifestEntry) {
		line += "\n" + mutedStyle.Render("  hint: reference a configured entry or an id already in the manifest")
	}

	return line
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
