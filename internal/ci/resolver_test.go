package ci

import "testing"

func clearResolverEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GITHUB_REPOSITORY",
		"GITHUB_SERVER_URL",
		"GITHUB_SHA",
		"GITHUB_REF",
		"GITHUB_REF_NAME",
		"GITHUB_REPOSITORY_OWNER",
		"CI",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestResolveFromEnvironment_GitHubDetection(t *testing.T) {
	clearResolverEnv(t)

	t.Setenv("GITHUB_REPOSITORY", "octocat/hello-world")
	t.Setenv("GITHUB_SERVER_URL", "https://github.com")
	t.Setenv("GITHUB_SHA", "abcdef")
	t.Setenv("GITHUB_REF", "refs/pull/42/merge")
	t.Setenv("GITHUB_REF_NAME", "42")
	t.Setenv("GITHUB_REPOSITORY_OWNER", "octocat")
	t.Setenv("CI", "true")

	res, err := ResolveFromEnvironment(nil, "")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.PluginName != "github" {
		t.Fatalf("expected plugin github, got %q", res.PluginName)
	}
	if res.Kind != CIGitHub {
		t.Fatalf("expected kind github, got %v", res.Kind)
	}
	if res.Domain != "github.com" {
		t.Fatalf("expected domain github.com, got %q", res.Domain)
	}
	if res.Namespace != "octocat" {
		t.Fatalf("expected namespace octocat, got %q", res.Namespace)
	}
	if res.Repository != "hello-world" {
		t.Fatalf("expected repository hello-world, got %q", res.Repository)
	}
	if res.PullRequest != "42" {
		t.Fatalf("expected pull request 42, got %q", res.PullRequest)
	}
	if !res.Hydrated {
		t.Fatalf("expected hydrated to be true")
	}
}

func TestResolveFromEnvironment_UnsupportedProvided(t *testing.T) {
	clearResolverEnv(t)

	res, err := ResolveFromEnvironment(nil, "ado")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.PluginName != "ado" {
		t.Fatalf("expected plugin to remain ado, got %q", res.PluginName)
	}
	if res.Hydrated {
		t.Fatalf("expected hydrated to be false")
	}
}

func TestResolveFromEnvironment_ErrorWhenUnknownAndMissing(t *testing.T) {
	clearResolverEnv(t)

	if _, err := ResolveFromEnvironment(nil, ""); err == nil {
		t.Fatalf("expected error when plugin not provided and CI is unknown")
	}
}
