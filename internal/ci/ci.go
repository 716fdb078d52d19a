// Package ci provides helpers for discovering CI metadata.
package ci

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CIKind represents the type of CI.
type CIKind int

const (
	// CIUnknown indicates the CI provider could not be identified.
	CIUnknown CIKind = iota
	// CIGitHub identifies GitHub CI environments.
	CIGitHub
)

// LookupFunc fetches environment variables and defaults to os.Getenv.
type LookupFunc func(string) string

// CIEnvironment captures canonical CI metadata derived from environment variables.
type CIEnvironment struct {
	Kind               CIKind // Kind identifies the CI provider.
	CI                 bool   // CI reports whether the execution runs inside a CI environment.
	CommitHash         string // CommitHash is the tip commit that triggered the job.
	VCSServerURL       string // VCSServerURL is the scheme and host of the VCS server (e.g. https://vcs.domain/).
	Reference          string // Reference is the fully qualified git reference (e.g. refs/heads/main).
	ReferenceName      string // ReferenceName is the short reference or branch name.
	RepositoryName     string // RepositoryName is the repository slug without namespace.
	RepositoryFullName string // RepositoryFullName is the namespace-qualified repository name.
	RepositoryFullPath string // RepositoryFullPath is the full web URL for the repository.
	Namespace          string // Namespace is the owner or project namespace.
}

// String returns the human-readable string representation of a CIKind.
func (c CIKind) String() string {
	switch c {
	case CIGitHub:
		return "github"
	default:
		return "unknown"
	}
}

// ParseCIKind converts a string identifier into a CIKind value.
func ParseCIKind(raw string) (CIKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "github":
		return CIGitHub, nil
	default:
		return CIUnknown, fmt.Errorf("unsupported ci kind %q", raw)
	}
}

// DetectCIKind attempts to infer the CI provider from well-known environment variables.
func DetectCIKind() CIKind {
	return detectCIKindWithLookup(os.Getenv)
}

func detectCIKindWithLookup(lookup LookupFunc) CIKind {
	if lookup == nil {
		lookup = os.Getenv
	}

	if lookup("GITHUB_REPOSITORY") != "" || lookup("GITHUB_SHA") != "" {
		return CIGitHub
	}

	return CIUnknown
}

// GetCIDefaultEnvVars returns CI environment variables for the provided kind using the process environment.
func GetCIDefaultEnvVars(kind CIKind) (CIEnvironment, error) {
	return getCIDefaultEnvVars(kind, os.Getenv)
}

// getCIDefaultEnvVars resolves CI environment variables with the supplied lookup function.
func getCIDefaultEnvVars(kind CIKind, lookup LookupFunc) (CIEnvironment, error) {
	if lookup == nil {
		lookup = os.Getenv
	}

	switch kind {
	case CIGitHub:
		return extractGitHubVariables(lookup), nil
	default:
		return CIEnvironment{}, fmt.Errorf("unsupported ci kind: %s", kind)
	}
}

// extractGitHubVariables builds the CIEnvironment from GitHub-specific variables.
// See https://docs.github.com/en/actions/reference/workflows-and-actions/variables.
func extractGitHubVariables(lookup LookupFunc) CIEnvironment {
	ci, _ := strconv.ParseBool(lookup("CI"))

	fullName := lookup("GITHUB_REPOSITORY")
	repoName := ""
	if i := strings.LastIndex(fullName, "/"); i >= 0 && i < len(fullName)-1 {
		repoName = fullName[i+1:]
	}

	serverURL := lookup("GITHUB_SERVER_URL")
	fullPath := ""
	if serverURL != "" && fullName != "" {
		fullPath = serverURL + "/" + fullName
	}

	return CIEnvironment{
		Kind:               CIGitHub,
		CI:                 ci,
		CommitHash:         lookup("GITHUB_SHA"),
		VCSServerURL:       serverURL,                         // VCSServerURL includes only the scheme and host.
		Reference:          lookup("GITHUB_REF"),              // Reference stores the fully qualified ref (e.g., refs/heads/main).
		ReferenceName:      lookup("GITHUB_REF_NAME"),         // ReferenceName stores the short ref or branch name.
		RepositoryName:     repoName,                          // RepositoryName stores only the repository slug.
		RepositoryFullName: fullName,                          // RepositoryFullName stores the namespace and repository.
		RepositoryFullPath: fullPath,                          // RepositoryFullPath stores the HTTPS URL to the repository.
		Namespace:          lookup("GITHUB_REPOSITORY_OWNER"), // Namespace stores the owner or organization name.
	}
}
