// Package vcs sends workflow status-check callbacks back to the VCS
// hosting a scanned commit, one of the "external interfaces" of
// spec.md §6. It is grounded on the teacher's plugins/github,
// plugins/gitlab, and plugins/bitbucket client construction (each
// plugin's own NewClient/base-URL wiring), collapsed here into a single
// StatusReporter interface with one implementation per provider instead
// of three separate go-plugin RPC processes.
package vcs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-github/v47/github"
	gitlab "github.com/xanzy/go-gitlab"

	"github.com/scanio-git/orchestrator/internal/workflow"
)

// State is the unified status-check outcome, mapped to each provider's
// native vocabulary by the individual reporters below.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateError   State = "error"
)

// StatusReporter posts a workflow's outcome back to the commit it scanned.
type StatusReporter interface {
	ReportStatus(ctx context.Context, owner, repo, commitSHA string, state State, description, targetURL string) error
}

// StateForPhase maps a terminal workflow phase to the unified status
// state a reporter posts.
func StateForPhase(phase workflow.Phase) State {
	switch phase {
	case workflow.PhaseSucceeded:
		return StateSuccess
	case workflow.PhaseFailed:
		return StateFailure
	case workflow.PhaseCanceled:
		return StateError
	default:
		return StatePending
	}
}

// GitHubReporter posts commit statuses via the GitHub REST API.
type GitHubReporter struct {
	Client *github.Client
}

// NewGitHubReporter builds a reporter authenticated with an
// oauth2-wrapped *http.Client, following the teacher's plugins/github.go
// client construction (github.NewClient(httpClient) is the
// ecosystem-standard idiom for authenticated calls; the teacher itself
// used github.NewClient(nil) for unauthenticated repo listing, and status
// posting needs the write scope a token grants).
func NewGitHubReporter(httpClient *http.Client) *GitHubReporter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubReporter{Client: github.NewClient(httpClient)}
}

func (r *GitHubReporter) ReportStatus(ctx context.Context, owner, repo, commitSHA string, state State, description, targetURL string) error {
	status := &github.RepoStatus{
		State:       github.String(string(state)),
		Description: github.String(description),
		Context:     github.String("orchestrator/scan"),
	}
	if targetURL != "" {
		status.TargetURL = github.String(targetURL)
	}
	_, _, err := r.Client.Repositories.CreateStatus(ctx, owner, repo, commitSHA, status)
	if err != nil {
		return fmt.Errorf("github status callback: %w", err)
	}
	return nil
}

// GitLabReporter posts commit statuses via the GitLab REST API.
type GitLabReporter struct {
	Client *gitlab.Client
}

// NewGitLabReporter builds a reporter against baseURL, following the
// teacher's plugins/gitlab.go gitlab.NewClient(token, WithBaseURL(...))
// construction.
func NewGitLabReporter(token, baseURL string) (*GitLabReporter, error) {
	opts := []gitlab.ClientOptionFunc{}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return &GitLabReporter{Client: client}, nil
}

func (r *GitLabReporter) ReportStatus(ctx context.Context, owner, repo, commitSHA string, state State, description, targetURL string) error {
	opts := &gitlab.SetCommitStatusOptions{
		State:       mapGitLabState(state),
		Description: gitlab.Ptr(description),
		Context:     gitlab.Ptr("orchestrator/scan"),
	}
	if targetURL != "" {
		opts.TargetURL = gitlab.Ptr(targetURL)
	}
	projectID := owner + "/" + repo
	_, _, err := r.Client.Commits.SetCommitStatus(projectID, commitSHA, opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab status callback: %w", err)
	}
	return nil
}

func mapGitLabState(s State) gitlab.BuildStateValue {
	switch s {
	case StateSuccess:
		return gitlab.Success
	case StateFailure:
		return gitlab.Failed
	case StateError:
		return gitlab.Failed
	default:
		return gitlab.Pending
	}
}

// BitbucketReporter posts build statuses via Bitbucket Server's REST API.
// Bitbucket Server has no first-party Go SDK in the example pack (the
// teacher's own plugins/bitbucket.go talks to it over raw net/http), so
// this reporter reuses the orchestrator's shared resty client (built by
// internal/httpclient.New) instead of inventing a bespoke net/http path.
type BitbucketReporter struct {
	Client  *resty.Client
	BaseURL string
	Token   string
}

func (r *BitbucketReporter) ReportStatus(ctx context.Context, owner, repo, commitSHA string, state State, description, targetURL string) error {
	url := fmt.Sprintf("%s/rest/build-status/1.0/commits/%s", r.BaseURL, commitSHA)
	body := map[string]string{
		"state":       mapBitbucketState(state),
		"key":         "orchestrator-scan",
		"name":        "orchestrator scan",
		"description": description,
		"url":         targetURL,
	}
	resp, err := r.Client.R().
		SetContext(ctx).
		SetAuthToken(r.Token).
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("bitbucket status callback: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bitbucket status callback: unexpected status %d", resp.StatusCode())
	}
	return nil
}

func mapBitbucketState(s State) string {
	switch s {
	case StateSuccess:
		return "SUCCESSFUL"
	case StateFailure, StateError:
		return "FAILED"
	default:
		return "INPROGRESS"
	}
}
