package isolate

import (
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const sandboxPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// inheritedVars are copied from the host into a strict sandbox when set.
var inheritedVars = mapset.NewSet("LANG", "LC_ALL", "TZ")

// strictEnv builds the environment of an isolated child from scratch:
// a fixed base, the host locale and the job variables.
func strictEnv(home string, job map[string]string) []string {
	env := map[string]string{
		"PATH":   sandboxPath,
		"HOME":   home,
		"TMPDIR": "/tmp",
		"LANG":   "C.UTF-8",
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && inheritedVars.Contains(k) {
			env[k] = v
		}
	}
	for k, v := range job {
		env[k] = v
	}
	return flattenEnv(env)
}

// plainEnv passes the whole host environment through, overlaid with the
// job variables.
func plainEnv(job map[string]string) []string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range job {
		env[k] = v
	}
	return flattenEnv(env)
}

func flattenEnv(env map[string]string) []string {
	res := make([]string, 0, len(env))
	for k, v := range env {
		res = append(res, k+"="+v)
	}
	sort.Strings(res)
	return res
}
