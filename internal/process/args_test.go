package process

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestTokenizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"spaces only", "   ", nil},
		{"plain", "--ctx-size 4096 -ngl 99", []string{"--ctx-size", "4096", "-ngl", "99"}},
		{"double quotes", `--mmproj "my proj.gguf"`, []string{"--mmproj", "my proj.gguf"}},
		{"single quotes", `--alias 'my model'`, []string{"--alias", "my model"}},
		{"empty quoted token", `--alias ""`, []string{"--alias", ""}},
		{"mixed", `-a 1  --b="x y"`, []string{"-a", "1", "--b=x y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenizeArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tokenizeArgs(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"absent", []string{"--ctx-size", "4096"}, 0},
		{"separate value", []string{"--port", "9090"}, 9090},
		{"equals form", []string{"--port=9191"}, 9191},
		{"malformed value", []string{"--port", "lots"}, 0},
		{"trailing flag", []string{"--port"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePort(tt.args); got != tt.want {
				t.Errorf("parsePort(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestStripPortArgs(t *testing.T) {
	in := []string{"--port", "9090", "--ctx-size", "4096", "--port=9191", "-ngl", "99"}
	want := []string{"--ctx-size", "4096", "-ngl", "99"}
	if got := stripPortArgs(in); !reflect.DeepEqual(got, want) {
		t.Errorf("stripPortArgs = %#v, want %#v", got, want)
	}
}

func TestResolveModelPaths(t *testing.T) {
	dir := filepath.Join("/models", "llama")
	in := []string{"--mmproj", "proj.gguf", "--model-draft", "/abs/draft.gguf", "-md", "d.gguf", "--ctx-size", "4096"}
	got := resolveModelPaths(in, dir)

	if got[1] != filepath.Join(dir, "proj.gguf") {
		t.Errorf("relative mmproj not resolved: %q", got[1])
	}
	if got[3] != "/abs/draft.gguf" {
		t.Errorf("absolute path rewritten: %q", got[3])
	}
	if got[5] != filepath.Join(dir, "d.gguf") {
		t.Errorf("short draft flag not resolved: %q", got[5])
	}
	if in[1] != "proj.gguf" {
		t.Error("input slice mutated")
	}
}

func TestModelNameFromPath(t *testing.T) {
	if got := modelNameFromPath("/models/Qwen2.5-7B-Q4.gguf"); got != "Qwen2.5-7B-Q4" {
		t.Errorf("modelNameFromPath = %q", got)
	}
}
