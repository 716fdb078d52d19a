// Package version implements the version subcommand, adapted from the
// teacher's cmd/version/version.go: same core-version-plus-plugin-versions
// shape, but plugin metadata now describes internal/pluginhost subprocess
// adapters rather than the teacher's family of standalone VCS/scanner
// plugin binaries, since every other adapter here is compiled into this
// binary and has no VERSION file of its own.
package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/scanio-git/orchestrator/internal/config"
)

var (
	AppConfig   *config.Config
	CoreVersion = "unknown"
	BuildTime   = "unknown"
)

// PluginMeta describes one out-of-process adapter dispensed through
// internal/pluginhost, read from a VERSION file dropped alongside its
// binary at Paths.PluginsHome/<name>/VERSION.
type PluginMeta struct {
	Version  string `json:"version"`
	ToolID   string `json:"tool_id"`
	Protocol string `json:"protocol"`
}

// Info is the full payload the version command prints.
type Info struct {
	CoreVersion string                `json:"core_version"`
	GoVersion   string                `json:"go_version"`
	BuildTime   string                `json:"build_time"`
	Plugins     map[string]PluginMeta `json:"plugins"`
}

// Init records the resolved configuration so NewVersionCmd can locate the
// plugins directory.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd builds the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "version",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the orchestrator's version and any out-of-process adapter versions",
		Run: func(cmd *cobra.Command, args []string) {
			pluginsDir := ""
			if AppConfig != nil {
				pluginsDir = AppConfig.Paths.PluginsHome
			}
			info := Info{
				CoreVersion: CoreVersion,
				GoVersion:   runtime.Version(),
				BuildTime:   BuildTime,
				Plugins:     readPluginVersions(pluginsDir),
			}
			printInfo(info)
		},
	}
}

func readPluginVersions(pluginsDir string) map[string]PluginMeta {
	meta := map[string]PluginMeta{}
	if pluginsDir == "" {
		return meta
	}
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return meta
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta[entry.Name()] = readVersionFile(filepath.Join(pluginsDir, entry.Name(), "VERSION"))
	}
	return meta
}

func readVersionFile(path string) PluginMeta {
	data, err := os.ReadFile(path)
	if err != nil {
		return PluginMeta{Version: "unknown", Protocol: "unknown"}
	}
	var pm PluginMeta
	if err := json.Unmarshal(data, &pm); err != nil {
		return PluginMeta{Version: "unknown", Protocol: "unknown"}
	}
	return pm
}

func printInfo(info Info) {
	fmt.Printf("Core Version: %s\n", info.CoreVersion)
	fmt.Printf("Go Version: %s\n", info.GoVersion)
	fmt.Printf("Build Time: %s\n", info.BuildTime)
	if len(info.Plugins) == 0 {
		return
	}
	fmt.Println("Adapter Plugins:")
	for name, pm := range info.Plugins {
		fmt.Printf("  %s: v%s (tool_id=%s, protocol=%s)\n", name, pm.Version, pm.ToolID, pm.Protocol)
	}
}
