package report

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

const ruleWidth = 65

var (
	dashRule   = strings.Repeat("-", ruleWidth)
	doubleRule = strings.Repeat("=", ruleWidth)
)

// WriteConsole renders c as fixed-width tables, one block per operation.
func WriteConsole(w io.Writer, c *Comparison) error {
	cw := &consoleWriter{w: w}
	a, b := title(c.ModeA), title(c.ModeB)

	cw.printf("\nComparative Benchmark Results\n\n")
	for _, op := range c.Operations {
		cw.printf("Operation: %s\n", op.Operation)
		cw.printf("%s\n", dashRule)

		cw.printf("Throughput (operations/sec):\n")
		cw.header(a, b)
		cw.row(op.Throughput)
		cw.printf("\n")

		cw.printf("Latencies (ms):\n")
		cw.header(a, b)
		for _, r := range op.Latencies {
			cw.row(r)
		}

		cw.printf("\nSamples in window:\n")
		cw.printf("%s: %s, %s: %s\n", a, humanize.Comma(int64(op.StatsA.Count)), b, humanize.Comma(int64(op.StatsB.Count)))

		cw.printf("\nErrors:\n")
		cw.printf("%s: %s, %s: %s\n", a, humanize.Comma(int64(op.Errors.A)), b, humanize.Comma(int64(op.Errors.B)))

		cw.printf("\n%s\n\n", doubleRule)
	}
	return cw.err
}

type consoleWriter struct {
	w   io.Writer
	err error
}

func (cw *consoleWriter) printf(format string, args ...any) {
	if cw.err != nil {
		return
	}
	_, cw.err = fmt.Fprintf(cw.w, format, args...)
}

func (cw *consoleWriter) header(a, b string) {
	cw.printf("%-15s %12s %12s %12s %12s\n", "Metric", a, b, "Difference", "% Difference")
	cw.printf("%s\n", dashRule)
}

func (cw *consoleWriter) row(r Row) {
	cw.printf("%-15s %12.2f %12.2f %12.2f %11.2f%%\n", r.Label, r.A, r.B, r.Diff, r.Percent)
}

// title upper-cases the first letter of a mode name for column headers.
func title(mode string) string {
	if mode == "" {
		return mode
	}
	r := []rune(mode)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
