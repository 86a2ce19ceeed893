package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"mongoscan/config"
	"mongoscan/internal/di"
)

func main() {
	root := &cobra.Command{
		Use:           "mongoscan",
		Short:         "Read MongoDB collections as relational tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newTablesCommand(),
		newScanCommand(),
		newCountCommand(),
		newSchemaCommand(),
		newParseCommand(),
		newTokenCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the environment and wires the container for a command.
func setup() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load environment variables: %v", err)
	}
	di.Initialize()
}
