package main

import (
	"os"

	"github.com/go-go-golems/survey-caller/cmd/survey-agent/cmds"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd, err := cmds.NewRootCommand()
	cobra.CheckErr(err)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
