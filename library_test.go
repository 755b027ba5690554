package sqlixx

import (
	"runtime"
	"testing"
)

func TestLibraryCandidatesEnvOverride(t *testing.T) {
	t.Setenv("SQLIXX_LIBRARY_PATH", "/opt/custom/libsqlite3.so")
	candidates, err := libraryCandidates()
	if err != nil {
		t.Fatalf("libraryCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "/opt/custom/libsqlite3.so" {
		t.Fatalf("expected the override path only, got %v", candidates)
	}
}

func TestLibraryCandidatesDefaults(t *testing.T) {
	t.Setenv("SQLIXX_LIBRARY_PATH", "")
	candidates, err := libraryCandidates()
	switch runtime.GOOS {
	case "darwin", "linux", "freebsd", "windows":
		if err != nil {
			t.Fatalf("libraryCandidates failed: %v", err)
		}
		if len(candidates) == 0 {
			t.Fatalf("expected at least one candidate for %s", runtime.GOOS)
		}
	default:
		if err == nil {
			t.Fatalf("expected an error on an unsupported OS")
		}
	}
}
