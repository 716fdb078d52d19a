package main

import (
	"os"

	cmd "github.com/scanio-git/orchestrator/cmd/orchestrator"
)

func main() {
	os.Exit(cmd.Execute())
}
