package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/SoftKiwiGames/hermes/hermes/rest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/wzshiming/ctc"
)

type Output struct {
	stdout io.Writer
	stderr io.Writer
}

func NewOutput(stdout, stderr io.Writer) *Output {
	return &Output{
		stdout: stdout,
		stderr: stderr,
	}
}

// Header prints a formatted section header
func (o *Output) Header(text string) {
	fmt.Fprintf(o.stdout, "\n%s\n", strings.Repeat("=", len(text)))
	fmt.Fprintf(o.stdout, "%s\n", text)
	fmt.Fprintf(o.stdout, "%s\n\n", strings.Repeat("=", len(text)))
}

// Info prints an informational message
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Success prints a success message with checkmark
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintf(o.stdout, "%s✓%s "+format+"\n", append([]any{ctc.ForegroundGreen, ctc.Reset}, args...)...)
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	fmt.Fprintf(o.stdout, "%s⚠%s "+format+"\n", append([]any{ctc.ForegroundYellow, ctc.Reset}, args...)...)
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	fmt.Fprintf(o.stderr, "%s✗%s "+format+"\n", append([]any{ctc.ForegroundRed, ctc.Reset}, args...)...)
}

// InstanceTable renders the registry snapshot grouped by app.
func (o *Output) InstanceTable(apps map[string][]rest.Instance) {
	if len(apps) == 0 {
		fmt.Fprintln(o.stdout, "No apps found.")
		return
	}

	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(o.stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"APP", "INSTANCE", "IP", "PORT", "STATUS"})

	for _, name := range names {
		for _, inst := range apps[name] {
			t.AppendRow(table.Row{name, inst.ID(), inst.IPAddr, formatPort(inst.Port), colorStatus(inst.Status)})
		}
	}

	t.Render()
}

func formatPort(port *rest.Port) string {
	if port == nil || !port.Enabled {
		return "-"
	}
	return fmt.Sprintf("%d", port.Value)
}

func colorStatus(status rest.Status) string {
	switch status {
	case rest.StatusUp:
		return fmt.Sprintf("%s%s%s", ctc.ForegroundGreen, status, ctc.Reset)
	case rest.StatusDown, rest.StatusOutOfService:
		return fmt.Sprintf("%s%s%s", ctc.ForegroundRed, status, ctc.Reset)
	default:
		return fmt.Sprintf("%s%s%s", ctc.ForegroundYellow, status, ctc.Reset)
	}
}
