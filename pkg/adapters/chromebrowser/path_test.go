package chromebrowser

import (
	"errors"
	"os"
	"runtime"
	"testing"
)

func TestResolveChromePath_Precedence(t *testing.T) {
	t.Setenv("CHROME_PATH", "/env/chrome")

	if got := ResolveChromePath(""); got != "/env/chrome" {
		t.Errorf("expected CHROME_PATH to be used, got %s", got)
	}
	if got := ResolveChromePath("/explicit/chrome"); got != "/explicit/chrome" {
		t.Errorf("expected explicit path to take precedence, got %s", got)
	}
}

func TestFindChrome_NotFound(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("absolute install paths are searched on this platform")
	}
	t.Setenv("CHROME_PATH", "")
	t.Setenv("PATH", "")

	_, err := FindChrome("")
	if !errors.Is(err, ErrChromeNotFound) {
		t.Errorf("expected ErrChromeNotFound, got %v", err)
	}
}

func TestResolveExecutable(t *testing.T) {
	shell := "/bin/sh"
	if runtime.GOOS == "windows" {
		shell = os.Getenv("COMSPEC")
	}
	if shell == "" {
		t.Skip("No known executable path for this platform")
	}

	tests := []struct {
		name     string
		input    string
		wantPath bool
	}{
		{"existing full path", shell, true},
		{"missing full path", "/definitely/not/a/real/path/chrome", false},
		{"missing command", "definitely-not-a-real-command-xyz123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolveExecutable(tt.input)
			if tt.wantPath && result == "" {
				t.Errorf("expected path for %s, got empty", tt.input)
			}
			if !tt.wantPath && result != "" {
				t.Errorf("expected empty for %s, got %s", tt.input, result)
			}
		})
	}
}
