// Package pluginhost dispenses a Tool Adapter (spec.md §4.1) running in a
// separate OS process as an in-process adapter.Adapter, for tools that must
// run as a long-lived process rather than a single invoked command. It is
// grounded directly on the teacher's shared.ScannerPlugin/ScannerRPCClient/
// ScannerRPCServer trio (pkg/shared/iscanner.go) and the host-side dispense
// idiom of cmd/fetch.go (plugin.NewClient, HandshakeConfig, rpcClient.Client
// then Dispense), generalized from the teacher's Scanner interface (Setup/
// Scan) to this repository's four-method Adapter contract.
//
// net/rpc, which go-plugin's default plugin.Plugin.Client/Server wire
// format uses, carries no context.Context: a canceled ctx passed to Execute
// stops the host from waiting on the call but does not signal the plugin
// process to stop early, the same limitation the teacher's own Scanner
// plugin carries.
package pluginhost

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// HandshakeConfig is the magic-cookie handshake every adapter plugin
// process and this host must agree on before a connection is trusted, the
// same UX safeguard as the teacher's shared.HandshakeConfig.
var HandshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ORCHESTRATOR_ADAPTER_PLUGIN",
	MagicCookieValue: "8f2b7d6e6c6a4e2f9c9c2a4f7b8e1d31",
}

const pluginKey = "adapter"

// PluginMap is the map handed to both plugin.NewClient (host side) and
// plugin.Serve (plugin side).
var PluginMap = map[string]goplugin.Plugin{
	pluginKey: &AdapterPlugin{},
}

// AdapterPlugin implements go-plugin's net/rpc plugin.Plugin, dispensing an
// AdapterRPCServer on the plugin side and an AdapterRPCClient on the host
// side, mirroring shared.ScannerPlugin.
type AdapterPlugin struct {
	Impl adapter.Adapter
}

func (p *AdapterPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &adapterRPCServer{impl: p.Impl}, nil
}

func (AdapterPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &adapterRPCClient{client: c}, nil
}

// executeArgs/executeReply/parseArgs/parseReply carry Execute/Parse's
// arguments across the RPC boundary; ctx is intentionally dropped, per the
// package doc.
type executeArgs struct {
	Request scan.Request
	EC      adapter.ExecutionContext
}

type parseArgs struct {
	Output  adapter.NativeOutput
	Request scan.Request
}

type adapterRPCServer struct {
	impl adapter.Adapter
}

func (s *adapterRPCServer) Describe(_ struct{}, resp *capability.Descriptor) error {
	*resp = s.impl.Describe()
	return nil
}

func (s *adapterRPCServer) Validate(req scan.Request, _ *struct{}) error {
	return s.impl.Validate(req)
}

func (s *adapterRPCServer) Execute(args executeArgs, resp *adapter.NativeOutput) error {
	out, err := s.impl.Execute(context.Background(), args.Request, args.EC)
	*resp = out
	return err
}

func (s *adapterRPCServer) Parse(args parseArgs, resp *[]finding.Finding) error {
	findings, err := s.impl.Parse(args.Output, args.Request)
	*resp = findings
	return err
}

// adapterRPCClient implements adapter.Adapter over an *rpc.Client, the
// host-side counterpart dispensed by AdapterPlugin.Client.
type adapterRPCClient struct {
	client *rpc.Client
}

func (c *adapterRPCClient) Describe() capability.Descriptor {
	var resp capability.Descriptor
	if err := c.client.Call("Plugin.Describe", struct{}{}, &resp); err != nil {
		return capability.Descriptor{}
	}
	return resp
}

func (c *adapterRPCClient) Validate(req scan.Request) error {
	return c.client.Call("Plugin.Validate", req, &struct{}{})
}

func (c *adapterRPCClient) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	var resp adapter.NativeOutput
	call := c.client.Go("Plugin.Execute", executeArgs{Request: req, EC: ec}, &resp, nil)
	select {
	case <-ctx.Done():
		return adapter.NativeOutput{}, ctx.Err()
	case res := <-call.Done:
		return resp, res.Error
	}
}

func (c *adapterRPCClient) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	var resp []finding.Finding
	err := c.client.Call("Plugin.Parse", parseArgs{Output: out, Request: req}, &resp)
	return resp, err
}

// Host owns a launched adapter plugin subprocess and the adapter.Adapter
// handle dispensed from it.
type Host struct {
	client *goplugin.Client
	Impl   adapter.Adapter
}

// Launch starts command as a plugin subprocess and dispenses its adapter.
func Launch(command string, args []string, logger hclog.Logger) (*Host, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             exec.Command(command, args...),
		Logger:          logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("pluginhost: connecting to %s: %w", command, err)
	}

	raw, err := rpcClient.Dispense(pluginKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("pluginhost: dispensing adapter from %s: %w", command, err)
	}

	impl, ok := raw.(adapter.Adapter)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("pluginhost: %s did not dispense an adapter.Adapter", command)
	}

	return &Host{client: client, Impl: impl}, nil
}

// Close terminates the plugin subprocess.
func (h *Host) Close() {
	h.client.Kill()
}

// Serve runs impl as a plugin subprocess, blocking until the host
// disconnects. Tool binaries meant to run out-of-process call this from
// main instead of registering directly with an in-process registry.Registry.
func Serve(impl adapter.Adapter) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]goplugin.Plugin{
			pluginKey: &AdapterPlugin{Impl: impl},
		},
	})
}
