// Package report renders verdict reports for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"netconform/internal/domain"
	"netconform/internal/service"
)

// Options controls rendering
type Options struct {
	// Color enables ANSI styling
	Color bool
	// Properties lists entity properties under each entity
	Properties bool
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	branchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#af87ff"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	nameStyle     = lipgloss.NewStyle().Bold(true)
	verdictStyles = map[domain.Verdict]lipgloss.Style{
		domain.VerdictPass:     lipgloss.NewStyle().Foreground(lipgloss.Color("#22aa22")),
		domain.VerdictFail:     lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true),
		domain.VerdictExternal: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf5f")),
		domain.VerdictIncon:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffdf87")),
		domain.VerdictIgnore:   dimStyle,
	}
)

type printer struct {
	w    io.Writer
	opts Options
	err  error
}

func (p *printer) paint(style lipgloss.Style, text string) string {
	if !p.opts.Color {
		return text
	}
	return style.Render(text)
}

func (p *printer) verdict(v domain.Verdict) string {
	text := "[" + service.VerdictName(v) + "]"
	style, ok := verdictStyles[v]
	if !ok {
		style = dimStyle
	}
	return p.paint(style, text)
}

func (p *printer) println(a ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, a...)
}

// Render writes the report as a tree of entities with their verdicts
func Render(w io.Writer, rep *service.Report, opts Options) error {
	p := &printer{w: w, opts: opts}

	p.println(p.paint(titleStyle, rep.System), p.verdict(rep.Verdict))
	p.println(p.paint(dimStyle, Summary(rep)))
	p.println()

	for i, e := range rep.Entities {
		p.entity(e, "", i == len(rep.Entities)-1)
	}
	return p.err
}

func (p *printer) entity(e *service.EntityReport, prefix string, last bool) {
	connector, indent := "├─ ", "│  "
	if last {
		connector, indent = "└─ ", "   "
	}

	line := []string{
		p.paint(branchStyle, prefix+connector) + p.paint(nameStyle, e.Name),
		p.verdict(e.Verdict),
		p.paint(dimStyle, fmt.Sprintf("%s %s #%d", e.Kind, e.Status, e.ID)),
	}
	if len(e.Addresses) > 0 {
		line = append(line, strings.Join(e.Addresses, " "))
	}
	p.println(strings.Join(line, " "))

	childPrefix := prefix + indent
	if p.opts.Properties {
		for _, prop := range e.Properties {
			p.property(prop, childPrefix)
		}
	}
	for i, c := range e.Children {
		p.entity(c, childPrefix, i == len(e.Children)-1)
	}
}

func (p *printer) property(prop service.PropertyReport, prefix string) {
	parts := []string{p.paint(branchStyle, prefix+"· ") + prop.Key}
	if prop.Verdict != domain.VerdictUndefined {
		parts = append(parts, p.verdict(prop.Verdict))
	}
	if prop.Value != nil {
		parts = append(parts, fmt.Sprint(prop.Value))
	}
	if prop.Explanation != "" {
		parts = append(parts, p.paint(dimStyle, prop.Explanation))
	}
	p.println(strings.Join(parts, " "))
}

// Summary lists the verdict counts, sorted by verdict name
func Summary(rep *service.Report) string {
	names := make([]string, 0, len(rep.Counts))
	total := 0
	for name, n := range rep.Counts {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)

	parts := []string{fmt.Sprintf("%d entities", total)}
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, rep.Counts[name]))
	}
	return strings.Join(parts, " ")
}
