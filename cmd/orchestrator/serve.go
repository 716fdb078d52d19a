package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanio-git/orchestrator/internal/broker"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/resources"
)

type stdio struct {
	in  *os.File
	out *os.File
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s stdio) Close() error                { return nil }

// newServeCmd runs the JSON-RPC broker session over stdin/stdout, the
// long-lived counterpart to run's one-shot invocation, letting a
// tool-calling client (an IDE, an agent runtime) drive the same registry
// interactively (spec.md §6).
func newServeCmd() *cobra.Command {
	var maxInFlight int
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON-RPC tool broker over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := Log.Named("broker")
			reg := buildRegistry(AppConfig, log)

			store, err := openStore(AppConfig)
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			reader := resources.New(store)
			ring := events.NewRing(1024)

			if maxInFlight <= 0 {
				maxInFlight = AppConfig.Broker.MaxInFlight
			}
			session := broker.NewSession(stdio{os.Stdin, os.Stdout}, reg, reader, log, ring, maxInFlight)
			defer session.Close()
			return session.Serve(cmd.Context())
		},
	}
	c.Flags().IntVar(&maxInFlight, "max-in-flight", 0, "override broker.max_in_flight_tools from config")
	return c
}
