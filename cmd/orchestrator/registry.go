package cmd

import (
	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/adapter/codeql"
	"github.com/scanio-git/orchestrator/internal/adapter/container"
	"github.com/scanio-git/orchestrator/internal/adapter/dast"
	"github.com/scanio-git/orchestrator/internal/adapter/sca"
	"github.com/scanio-git/orchestrator/internal/adapter/secrets"
	"github.com/scanio-git/orchestrator/internal/adapter/semgrep"
	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/registry"
)

// buildRegistry registers the six built-in adapters, mirroring the
// teacher's plugin-directory scan (cmd/list.go) but with adapters
// compiled directly into this binary instead of dispensed subprocesses.
// Out-of-process tools launched via internal/pluginhost are registered
// the same way, by whatever command constructs the Host and calls
// reg.Register(host.Impl) — buildRegistry only seeds the built-ins.
func buildRegistry(cfg *config.Config, log hclog.Logger) *registry.Registry {
	reg := registry.New()

	adapters := []adapter.Adapter{
		semgrep.New(),
		secrets.New(),
		sca.New(),
		codeql.New("go"),
		container.New("aquasec/trivy", "orchestrator"),
		dast.New(log.Named("dast"), cfg.HTTPClient),
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			log.Warn("adapter registration failed", "tool_id", a.Describe().ToolID, "error", err)
		}
	}
	return reg
}
