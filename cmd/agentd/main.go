package main

import (
	"os"

	"github.com/lunai408/local-agent-factory/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
