package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/mattn/go-isatty"

	"github.com/vito/xtype/pkg/xtype"
)

var (
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	relationStyles = map[xtype.Relation]lipgloss.Style{
		xtype.IsA:          lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		xtype.IsAWeak:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		xtype.Incompatible: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printer writes styled output when its writer is a terminal and plain
// text otherwise.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, styled: isTerminal(w)}
}

func (p *printer) style(s lipgloss.Style, str string) string {
	if !p.styled {
		return str
	}
	return s.Render(str)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) relation(e *xtype.Engine, left, right xtype.Handle, rel xtype.Relation) {
	p.printf("%s -> %s: %s\n",
		p.style(typeStyle, e.Format(left)),
		p.style(typeStyle, e.Format(right)),
		p.style(relationStyles[rel], rel.String()))
}

func (p *printer) diagnostic(d xtype.Diagnostic) {
	sev := d.Severity.String()
	switch d.Severity {
	case xtype.SeverityError:
		sev = p.style(errorStyle, sev)
	case xtype.SeverityWarning:
		sev = p.style(warningStyle, sev)
	}
	p.printf("%s [%s] %s: %s\n", sev, d.Code, d.Context, d.Message)
}

func (p *printer) info(e *xtype.Engine, info *xtype.TypeInfo) {
	a := e.Arena()
	p.printf("%s\n", p.style(typeStyle, e.Format(info.Type)))
	if info.Class != "" {
		p.printf("  %s %s (%s)\n", p.style(labelStyle, "class:"), info.Class, info.Format)
	}
	if info.Access != xtype.Public {
		p.printf("  %s %s\n", p.style(labelStyle, "access:"), info.Access)
	}
	if !info.IsComplete() {
		p.printf("  %s %s\n", p.style(labelStyle, "progress:"), info.Progress)
	}

	if len(info.Params) > 0 {
		p.printf("  %s\n", p.style(labelStyle, "params:"))
		names := make([]string, 0, len(info.Params))
		for name := range info.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.printf("    %s = %s\n", name, e.Format(info.Params[name].Type()))
		}
	}

	for _, set := range []struct {
		label string
		ids   xtype.ClassSet
	}{
		{"extends:", info.Extended},
		{"implements:", info.Implemented},
		{"incorporates:", info.Incorporated},
		{"implicit:", info.Implicit},
	} {
		if len(set.ids) == 0 {
			continue
		}
		var ids []string
		for _, id := range set.ids.Sorted() {
			ids = append(ids, string(id))
		}
		p.printf("  %s %s\n", p.style(labelStyle, set.label), strings.Join(ids, ", "))
	}

	var props []string
	for _, name := range info.PropertyNames() {
		if !info.Properties[name].IsTypeParam() {
			props = append(props, name)
		}
	}
	if len(props) > 0 {
		p.printf("  %s\n", p.style(labelStyle, "properties:"))
		for _, name := range props {
			prop := info.Properties[name]
			var flags []string
			if prop.Effective.ReadOnly {
				flags = append(flags, "read-only")
			}
			if prop.RequiresField() {
				flags = append(flags, "field")
			}
			if prop.Effective.Abstract {
				flags = append(flags, "abstract")
			}
			if prop.Effective.Custom {
				flags = append(flags, "custom")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " " + p.style(dimStyle, "["+strings.Join(flags, ", ")+"]")
			}
			p.printf("    %s: %s%s\n", name, e.Format(prop.Type()), suffix)
		}
	}

	if len(info.Methods) > 0 {
		p.printf("  %s\n", p.style(labelStyle, "methods:"))
		type line struct{ sig, chain string }
		var lines []line
		for _, m := range info.Methods {
			var bodies []string
			for _, b := range m.Bodies {
				bodies = append(bodies, b.String())
			}
			lines = append(lines, line{xtype.FormatSignature(a, m.Signature()), strings.Join(bodies, ", ")})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].sig < lines[j].sig })
		for _, l := range lines {
			p.printf("    %s: %s\n", l.sig, p.style(dimStyle, l.chain))
		}
	}
}
