package modrun

import (
	"encoding/json"
	"fmt"
)

// Bootstrap is the wrapper file that becomes the job's entry point and
// loads the bundle's own entry file.
type Bootstrap struct {
	Name   string
	Render func(entry string) string
}

var NodeBootstrap = Bootstrap{
	Name: "__runner.mjs",
	Render: func(entry string) string {
		return fmt.Sprintf(`import path from "node:path";
import { fileURLToPath, pathToFileURL } from "node:url";

const dir = path.dirname(fileURLToPath(import.meta.url));
await import(pathToFileURL(path.join(dir, %s)).href);
`, jsString(entry))
	},
}

// ShellBootstrap runs bundles whose entry file is a POSIX shell script.
var ShellBootstrap = Bootstrap{
	Name: "__runner.sh",
	Render: func(entry string) string {
		return fmt.Sprintf("exec /bin/sh %s\n", shellQuote(entry))
	},
}

// BootstrapByName returns the wrapper configured as "node" or "shell".
func BootstrapByName(name string) (Bootstrap, error) {
	switch name {
	case "node", "":
		return NodeBootstrap, nil
	case "shell":
		return ShellBootstrap, nil
	}
	return Bootstrap{}, fmt.Errorf("unknown bootstrap %q", name)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func shellQuote(s string) string {
	res := "'"
	for _, r := range s {
		if r == '\'' {
			res += `'\''`
		} else {
			res += string(r)
		}
	}
	return res + "'"
}
