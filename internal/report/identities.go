package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"netconform/internal/service"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5f5fd7"))

// Identities writes the durable IDs as a table
func Identities(w io.Writer, ids []service.Identity, opts Options) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "KIND", "NAME", "KEY")
	for _, id := range ids {
		t.Row(strconv.Itoa(id.ID), id.Kind, id.Name, id.Key)
	}
	if opts.Color {
		t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
