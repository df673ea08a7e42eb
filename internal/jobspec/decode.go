package jobspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/limits"
)

// Decode parses a JSON job descriptor and validates it.
func Decode(raw []byte) (Job, error) {
	var req api.JobReq
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		return Job{}, invalid("", "malformed descriptor: %v", err)
	}
	if dec.More() {
		return Job{}, invalid("", "trailing data after descriptor")
	}
	return FromRequest(req)
}

// FromRequest validates an already parsed descriptor. It performs no
// filesystem access.
func FromRequest(req api.JobReq) (Job, error) {
	lim, err := clampRequest(req.Limits)
	if err != nil {
		return Job{}, err
	}

	if int64(len(req.Files)) > lim.MaxFiles {
		return Job{}, invalid("files", "%d files exceed the limit of %d", len(req.Files), lim.MaxFiles)
	}

	seen := mapset.NewThreadUnsafeSetWithSize[string](len(req.Files))
	files := make([]File, 0, len(req.Files))
	for i, f := range req.Files {
		field := fmt.Sprintf("files[%d].relPath", i)
		rel, err := CleanRelPath(f.RelPath)
		if err != nil {
			return Job{}, invalid(field, "%v", err)
		}
		if !seen.Add(rel) {
			return Job{}, invalid(field, "duplicate path %q", rel)
		}
		if int64(len(f.Content)) > lim.MaxFileBytes {
			return Job{}, invalid(fmt.Sprintf("files[%d].content", i),
				"%d bytes exceed the limit of %d", len(f.Content), lim.MaxFileBytes)
		}
		files = append(files, File{RelPath: rel, Content: []byte(f.Content)})
	}

	// a listed file cannot also be a directory of another listed file
	for i, f := range files {
		for dir := path.Dir(f.RelPath); dir != "."; dir = path.Dir(dir) {
			if seen.Contains(dir) {
				return Job{}, invalid(fmt.Sprintf("files[%d].relPath", i),
					"%q is listed as a file and used as a directory", dir)
			}
		}
	}

	if req.EntryFile == "" {
		return Job{}, invalid("entryFile", "must not be empty")
	}
	entry, err := CleanRelPath(req.EntryFile)
	if err != nil {
		return Job{}, invalid("entryFile", "%v", err)
	}
	if !seen.Contains(entry) {
		return Job{}, invalid("entryFile", "%q is not among the listed files", entry)
	}

	for i, a := range req.Args {
		if strings.ContainsRune(a, 0) {
			return Job{}, invalid(fmt.Sprintf("args[%d]", i), "contains NUL")
		}
	}

	env := make(map[string]string, len(req.Env))
	for k, v := range req.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return Job{}, invalid("env", "bad variable name %q", k)
		}
		if strings.ContainsRune(v, 0) {
			return Job{}, invalid("env."+k, "value contains NUL")
		}
		env[k] = v
	}

	return Job{
		EntryFile: entry,
		Files:     files,
		Args:      append([]string(nil), req.Args...),
		Env:       env,
		Limits:    lim,
	}, nil
}

func clampRequest(req *api.LimitsReq) (limits.Limits, error) {
	if req == nil {
		return limits.Default(), nil
	}
	p := limits.Partial{
		CpuTimeMs:      req.CpuTimeMs,
		WallTimeMs:     req.WallTimeMs,
		MaxOutputBytes: req.MaxOutputBytes,
		MaxMemoryMb:    req.MaxMemoryMb,
		MaxFileBytes:   req.MaxFileBytes,
		MaxFiles:       req.MaxFiles,
	}
	if req.Network != nil {
		n, err := limits.ParseNetwork(*req.Network)
		if err != nil {
			return limits.Limits{}, invalid("limits.network", "%v", err)
		}
		p.Network = &n
	}
	return limits.Clamp(p), nil
}

// CleanRelPath rejects anything that could resolve outside the workspace.
// Accepted paths are returned unchanged.
func CleanRelPath(p string) (string, error) {
	switch {
	case p == "":
		return "", fmt.Errorf("empty path")
	case strings.ContainsRune(p, 0):
		return "", fmt.Errorf("path contains NUL")
	case strings.Contains(p, `\`):
		return "", fmt.Errorf("path %q contains a backslash", p)
	case path.IsAbs(p):
		return "", fmt.Errorf("path %q is absolute", p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "..":
			return "", fmt.Errorf("path %q escapes the workspace", p)
		case ".":
			return "", fmt.Errorf("path %q contains a dot segment", p)
		}
	}
	if strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("path %q names a directory", p)
	}
	if clean := path.Clean(p); clean != p {
		return "", fmt.Errorf("path %q is not canonical", p)
	}
	return p, nil
}
