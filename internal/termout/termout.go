// Package termout prints sandbox results, scenario outcomes and health
// reports to a terminal.
package termout

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/behave"
	"github.com/programme-lv/modbox/internal/result"
)

const (
	previewHeight = 20
	previewWidth  = 120
)

var (
	okColor   = color.New(color.FgHiGreen, color.Bold)
	warnColor = color.New(color.FgHiYellow, color.Bold)
	errColor  = color.New(color.FgHiRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// Result prints a short colored summary followed by trimmed output.
func Result(w io.Writer, res api.Result) {
	status := okColor.Sprint("OK")
	switch {
	case res.TimedOut:
		status = errColor.Sprint("TIMEOUT")
	case res.OutputTruncated:
		status = errColor.Sprint("OUTPUT LIMIT")
	case !res.Ok:
		status = errColor.Sprint("FAILED")
	}

	isolation := "isolated"
	if !res.Isolated {
		isolation = warnColor.Sprint("not isolated")
	}
	fmt.Fprintf(w, "== %s == exit=%s signal=%s wall=%dms backend=%s (%s)\n",
		status, exitStr(res.ExitCode), strOr(res.Signal, "-"), res.DurationMs, res.Backend, isolation)
	if res.StdoutSha256 != "" {
		dimColor.Fprintf(w, "stdout sha256 %s\n", res.StdoutSha256)
	}
	if res.Stdout != "" {
		fmt.Fprintf(w, "-- stdout --\n%s\n", result.TrimToRect(strings.TrimRight(res.Stdout, "\n"), previewHeight, previewWidth))
	}
	if res.Stderr != "" {
		fmt.Fprintf(w, "-- stderr --\n%s\n", result.TrimToRect(strings.TrimRight(res.Stderr, "\n"), previewHeight, previewWidth))
	}
}

// Scenario prints one line per behaviour scenario and the reasons of failures.
func Scenario(w io.Writer, o behave.Outcome) {
	if o.Passed() {
		fmt.Fprintf(w, "%s %s %s\n", okColor.Sprint("PASS"), o.Case.Name, dimColor.Sprintf("(%s, %dms)", o.Verdict, o.Result.DurationMs))
		return
	}
	fmt.Fprintf(w, "%s %s\n", errColor.Sprint("FAIL"), o.Case.Name)
	for _, m := range o.Mismatches {
		fmt.Fprintf(w, "     %s\n", m)
	}
}

type Health int

const (
	Okay Health = iota
	Warn
	Error
)

func (h Health) String() string {
	switch h {
	case Okay:
		return okColor.Sprint("OKAY")
	case Warn:
		return warnColor.Sprint("WARN")
	}
	return errColor.Sprint("ERROR")
}

type HealthRow struct {
	Unit    string
	Health  Health
	Message string
}

// HealthTable renders rows as an aligned table with single line messages.
func HealthTable(w io.Writer, rows []HealthRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tHEALTH\tMESSAGE")
	for _, r := range rows {
		msg := result.TrimToRect(strings.TrimSpace(r.Message), 3, previewWidth)
		msg = strings.ReplaceAll(msg, "\n", " ")
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Unit, r.Health, msg)
	}
	return tw.Flush()
}

func exitStr(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

func strOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
