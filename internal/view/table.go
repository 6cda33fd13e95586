package view

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"modeldash/pkg/types"
)

// Table renders collections as terminal tables.
type Table struct {
	Out   io.Writer
	Color bool
	// Now is used for expiry columns; nil means time.Now.
	Now func() time.Time
}

func (t Table) newWriter(title string) table.Writer {
	w := table.NewWriter()
	w.SetOutputMirror(t.Out)
	w.SetStyle(table.StyleRounded)
	w.SetTitle(title)
	return w
}

func (t Table) header(cols ...string) table.Row {
	row := make(table.Row, 0, len(cols))
	for _, c := range cols {
		if t.Color {
			row = append(row, text.FgHiCyan.Sprint(c))
		} else {
			row = append(row, c)
		}
	}
	return row
}

// Installed renders the installed models table.
func (t Table) Installed(models []types.InstalledModel) {
	w := t.newWriter("Installed models")
	w.AppendHeader(t.header("MODEL", "SIZE", "MODIFIED", "FORMAT", "FAMILY", "PARAMS", "QUANT"))
	for _, m := range models {
		w.AppendRow(table.Row{
			m.Name,
			FormatBytes(m.Size),
			m.ModifiedAt.Local().Format("2006-01-02 15:04"),
			m.Format,
			m.Family,
			m.ParameterSize,
			m.QuantizationLevel,
		})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d models", len(models))})
	w.Render()
}

// Running renders the running models table.
func (t Table) Running(models []types.RunningModel) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	w := t.newWriter("Running models")
	w.AppendHeader(t.header("NAME", "MODEL", "SIZE", "VRAM", "EXPIRES IN"))
	for _, m := range models {
		expires := "never"
		if mins, ok := m.MinutesUntilExpiry(now()); ok {
			expires = fmt.Sprintf("%d min", mins)
		}
		w.AppendRow(table.Row{m.Name, m.Model, FormatBytes(m.Size), FormatBytes(m.SizeVRAM), expires})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d running", len(models))})
	w.Render()
}

// Status renders one line per collection of a status report.
func (t Table) Status(s types.StatusResponse) {
	w := t.newWriter(s.Message)
	w.AppendHeader(t.header("COLLECTION", "OK", "COUNT", "AT", "ERROR"))
	for _, c := range s.Collections {
		ok := "yes"
		if !c.OK {
			ok = "no"
			if t.Color {
				ok = text.FgRed.Sprint(ok)
			}
		}
		w.AppendRow(table.Row{c.Collection, ok, c.Count, c.At.Local().Format(time.TimeOnly), c.Error})
	}
	w.Render()
}

// FormatBytes renders n with binary units, e.g. 1.9 GiB.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
