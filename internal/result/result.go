package result

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/isolate"
)

type Options struct {
	// HashOutput adds the SHA-256 of the trimmed stdout to the result.
	HashOutput bool
}

// Backend identifies who ran the job.
type Backend struct {
	Name     string
	Isolated bool
}

// Build turns a raw outcome into the public result.
func Build(out isolate.Outcome, b Backend, opts Options) api.Result {
	stderr := string(out.Stderr)
	if out.OutputTruncated {
		stderr += "\n" + api.OutputLimitExceeded
	}

	res := api.Result{
		Ok:              out.Exited(),
		ExitCode:        out.ExitCode,
		Stdout:          string(out.Stdout),
		Stderr:          stderr,
		DurationMs:      out.Duration.Milliseconds(),
		TimedOut:        out.TimedOut,
		OutputTruncated: out.OutputTruncated,
		Backend:         b.Name,
		Isolated:        b.Isolated,
	}
	if out.Signal != "" {
		sig := out.Signal
		res.Signal = &sig
	}
	if opts.HashOutput {
		res.StdoutSha256 = StdoutHash(res.Stdout)
	}
	return res
}

// StdoutHash is the hex SHA-256 of stdout without surrounding whitespace.
func StdoutHash(stdout string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(stdout)))
	return hex.EncodeToString(sum[:])
}

// TrimToRect cuts s to at most maxHeight lines of at most maxWidth bytes,
// marking every cut with "[...]". Lines are only cut at rune boundaries.
func TrimToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	var res strings.Builder
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	for i, line := range lines {
		if i > 0 {
			res.WriteByte('\n')
		}
		if len(line) > maxWidth {
			cut := maxWidth
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			res.WriteString(line[:cut])
			res.WriteString("[...]")
		} else {
			res.WriteString(line)
		}
	}
	return res.String()
}
