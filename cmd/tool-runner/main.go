// tool-runner executes declarative command descriptors inside podman or
// apptainer containers and maps declared outputs back to host paths.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tool-runner",
		Short: "Container sandbox runner for command descriptors",
		Long:  "Executes pre-built command descriptors inside podman or apptainer containers, bind-mounting exactly the referenced host files and mapping declared outputs back to host paths.",
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to config file")

	// Add commands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
