package process

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// tokenizeArgs splits a user-supplied argument string on whitespace,
// honoring single and double quotes so paths with spaces survive.
func tokenizeArgs(s string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	inToken := false

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				out = append(out, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		out = append(out, cur.String())
	}
	return out
}

// parsePort extracts a port from custom args, accepting both
// "--port 9090" and "--port=9090". Returns 0 when absent or malformed.
func parsePort(args []string) int {
	for i, a := range args {
		if a == "--port" && i+1 < len(args) {
			if p, err := strconv.Atoi(args[i+1]); err == nil {
				return p
			}
		}
		if v, ok := strings.CutPrefix(a, "--port="); ok {
			if p, err := strconv.Atoi(v); err == nil {
				return p
			}
		}
	}
	return 0
}

// stripPortArgs removes every --port flag so the negotiated port is the
// only one the child sees.
func stripPortArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--port" {
			i++ // skip the value too
			continue
		}
		if strings.HasPrefix(a, "--port=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// companionFlags take a model file path as their value.
var companionFlags = map[string]bool{
	"--mmproj":      true,
	"-mm":           true,
	"--model-draft": true,
	"-md":           true,
}

// resolveModelPaths rewrites relative companion model paths (mmproj,
// draft model) against the main model's directory, so custom args can
// name siblings of the model file.
func resolveModelPaths(args []string, modelDir string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i++ {
		if companionFlags[out[i]] && !filepath.IsAbs(out[i+1]) {
			out[i+1] = filepath.Join(modelDir, out[i+1])
		}
	}
	return out
}

// modelNameFromPath derives a display name from the model file path.
func modelNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
