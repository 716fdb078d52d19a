package target

import (
	"context"
	"testing"

	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/scan"
)

func TestResolveReturnsLocalPathVerbatim(t *testing.T) {
	r := New("/tmp/checkouts", config.DefaultGitClient(), nil)
	path, err := r.Resolve(context.Background(), scan.Target{Kind: capability.TargetLocalPath, Path: "/repo"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != "/repo" {
		t.Fatalf("expected passthrough, got %q", path)
	}
}

func TestRepoDirNameIsStableAndFilesystemSafe(t *testing.T) {
	a := repoDirName("https://example.test/org/repo.git")
	b := repoDirName("https://example.test/org/repo.git")
	if a != b {
		t.Fatal("expected repoDirName to be deterministic for the same URL")
	}
	c := repoDirName("https://example.test/org/other.git")
	if a == c {
		t.Fatal("expected distinct URLs to produce distinct directory names")
	}
}

func TestResolveRejectsUnknownTargetKind(t *testing.T) {
	r := New("/tmp/checkouts", config.DefaultGitClient(), nil)
	_, err := r.Resolve(context.Background(), scan.Target{Kind: "BOGUS", Path: "x"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized target kind")
	}
}
