package behave

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/jobspec"
)

// Verdicts a scenario can expect.
const (
	VerdictOk          = "ok"
	VerdictFailed      = "failed"
	VerdictTimeout     = "timeout"
	VerdictOutputLimit = "output_limit"
	VerdictInvalid     = "invalid"
	VerdictError       = "error"
)

// SpecRequest represents a request block inside a scenario entry
type SpecRequest struct {
	Runtime   string            `toml:"runtime"`
	EntryFile string            `toml:"entry_file"`
	Files     []api.File        `toml:"files"`
	Args      []string          `toml:"args"`
	Env       map[string]string `toml:"env"`
	Limits    *api.LimitsReq    `toml:"limits"`
}

// SpecExpect describes the expected verdict and, optionally, output
type SpecExpect struct {
	Verdict        string  `toml:"verdict"`
	Stdout         *string `toml:"stdout"`
	StdoutContains string  `toml:"stdout_contains"`
	ExitCode       *int    `toml:"exit_code"`
}

// specSuite maps to [[scenarios]] entries. The request is written as an
// array-of-tables, so it is modelled as a slice and the first element used.
type specSuite struct {
	Description string        `toml:"description"`
	RequestAOT  []SpecRequest `toml:"request"`
	Expect      SpecExpect    `toml:"expect"`
}

type specRoot struct {
	Suites []specSuite `toml:"scenarios"`
	// Registry of interpreters referenced by scenarios through runtime
	Runtimes []struct {
		ID      string   `toml:"id"`
		Command []string `toml:"command"`
	} `toml:"runtimes"`
}

// Case is a runnable scenario converted from TOML
type Case struct {
	ID      string
	Name    string
	Runtime []string
	Request api.JobReq
	Expect  SpecExpect
}

// Parse reads a behaviour TOML file and converts it to runnable cases
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	return ParseBytes(data)
}

func ParseBytes(data []byte) ([]Case, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	runtimes := make(map[string][]string)
	for _, r := range root.Runtimes {
		if r.ID == "" || len(r.Command) == 0 {
			return nil, fmt.Errorf("runtime entries need an id and a command")
		}
		runtimes[r.ID] = r.Command
	}

	cases := make([]Case, 0, len(root.Suites))
	for _, suite := range root.Suites {
		if len(suite.RequestAOT) == 0 {
			return nil, fmt.Errorf("scenario %q is missing request block", suite.Description)
		}
		reqSpec := suite.RequestAOT[0]

		cmd, ok := runtimes[reqSpec.Runtime]
		if !ok {
			return nil, fmt.Errorf("scenario %q: unknown runtime id %q", suite.Description, reqSpec.Runtime)
		}
		switch suite.Expect.Verdict {
		case VerdictOk, VerdictFailed, VerdictTimeout, VerdictOutputLimit, VerdictInvalid:
		default:
			return nil, fmt.Errorf("scenario %q: unknown verdict %q", suite.Description, suite.Expect.Verdict)
		}

		cases = append(cases, Case{
			ID:      uuid.NewString(),
			Name:    suite.Description,
			Runtime: cmd,
			Request: api.JobReq{
				EntryFile: reqSpec.EntryFile,
				Files:     reqSpec.Files,
				Args:      reqSpec.Args,
				Env:       reqSpec.Env,
				Limits:    reqSpec.Limits,
			},
			Expect: suite.Expect,
		})
	}
	return cases, nil
}

// Verdict summarizes a sandbox run in the vocabulary of scenario files.
func Verdict(res api.Result, err error) string {
	switch {
	case errors.Is(err, jobspec.ErrInvalidJob):
		return VerdictInvalid
	case err != nil:
		return VerdictError
	case res.TimedOut:
		return VerdictTimeout
	case res.OutputTruncated:
		return VerdictOutputLimit
	case res.Ok:
		return VerdictOk
	}
	return VerdictFailed
}

// Runner executes one job with the given runtime command.
type Runner interface {
	Run(ctx context.Context, runtime []string, req api.JobReq) (api.Result, error)
}

// Outcome is the result of one scenario.
type Outcome struct {
	Case    Case
	Result  api.Result
	Err     error
	Verdict string
	// Mismatches is empty when the scenario passed.
	Mismatches []string
}

func (o Outcome) Passed() bool {
	return len(o.Mismatches) == 0
}

func Execute(ctx context.Context, r Runner, c Case) Outcome {
	res, err := r.Run(ctx, c.Runtime, c.Request)
	o := Outcome{Case: c, Result: res, Err: err, Verdict: Verdict(res, err)}

	if o.Verdict != c.Expect.Verdict {
		msg := fmt.Sprintf("verdict %s, expected %s", o.Verdict, c.Expect.Verdict)
		if err != nil {
			msg += fmt.Sprintf(" (%v)", err)
		}
		o.Mismatches = append(o.Mismatches, msg)
	}
	if c.Expect.Stdout != nil && res.Stdout != *c.Expect.Stdout {
		o.Mismatches = append(o.Mismatches, fmt.Sprintf("stdout %q, expected %q", res.Stdout, *c.Expect.Stdout))
	}
	if c.Expect.StdoutContains != "" && !strings.Contains(res.Stdout, c.Expect.StdoutContains) {
		o.Mismatches = append(o.Mismatches, fmt.Sprintf("stdout does not contain %q", c.Expect.StdoutContains))
	}
	if c.Expect.ExitCode != nil {
		if res.ExitCode == nil || *res.ExitCode != *c.Expect.ExitCode {
			o.Mismatches = append(o.Mismatches, fmt.Sprintf("exit code %s, expected %d", fmtExit(res.ExitCode), *c.Expect.ExitCode))
		}
	}
	return o
}

func fmtExit(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprint(*code)
}
