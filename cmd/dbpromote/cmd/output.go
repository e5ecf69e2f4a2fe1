package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/dbpromote/internal/planner"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", color.Bold.Render(title))
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", color.Bold.Render(title))
	fmt.Fprintln(outputWriter, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// padRight pads s with spaces to the given visual width. Table names are not
// guaranteed to be ASCII, so byte or rune counts would misalign the columns.
func padRight(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// stepColor maps a step kind to the color it is rendered in.
func stepColor(kind planner.StepKind) color.Color {
	switch kind {
	case planner.StepCreateTable:
		return color.Green
	case planner.StepAlterStructure:
		return color.Yellow
	case planner.StepRecreateTable:
		return color.Magenta
	case planner.StepAddForeignKey:
		return color.Cyan
	case planner.StepSyncData:
		return color.Blue
	default:
		return color.FgDefault
	}
}
