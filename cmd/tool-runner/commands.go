package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/BV-BRC/tool-runner/internal/api"
	"github.com/BV-BRC/tool-runner/internal/config"
	"github.com/BV-BRC/tool-runner/internal/descriptor"
	"github.com/BV-BRC/tool-runner/internal/engine"
	"github.com/BV-BRC/tool-runner/internal/events"
	"github.com/BV-BRC/tool-runner/internal/journal"
	"github.com/BV-BRC/tool-runner/internal/runner"
	"github.com/BV-BRC/tool-runner/pkg/client"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <descriptor>",
		Short: "Execute one command descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server, _ := cmd.Flags().GetString("server"); server != "" {
				return runRemote(cmd, server, args[0])
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			inv, err := descriptor.Load(args[0])
			if err != nil {
				return err
			}

			run, err := buildRunner(cfg)
			if err != nil {
				return err
			}

			outputs, err := run.Execute(cmd.Context(), inv)
			if err != nil {
				var execErr *runner.ExecutionError
				if errors.As(err, &execErr) {
					fmt.Fprint(os.Stderr, execErr.Stderr)
				}
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(outputs)
		},
	}
	cmd.Flags().String("server", "", "Submit to a remote runner service instead of running locally")
	return cmd
}

func runRemote(cmd *cobra.Command, server, descriptorPath string) error {
	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return err
	}

	c := client.NewClient(client.Config{BaseURL: server})
	result, err := c.Submit(cmd.Context(), data)
	if err != nil {
		return err
	}
	if result.Status != journal.StatusCompleted {
		fmt.Fprint(os.Stderr, result.Stderr)
		return fmt.Errorf("invocation %s failed (exit %d): %s", result.InvocationID, result.ExitCode, result.Error)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Outputs)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the runner over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			run, err := buildRunner(cfg)
			if err != nil {
				return err
			}

			store, err := journal.Open(cfg.Journal)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close(cmd.Context())
			}

			publisher := events.NewPublisher(cfg.Events)
			defer publisher.Close()

			server := api.NewServer(cfg, run, store, publisher)
			httpServer := &http.Server{
				Addr:         server.Addr(),
				Handler:      server.Handler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			log.Printf("Listening on %s", server.Addr())
			return httpServer.ListenAndServe()
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Parse a descriptor and report problems without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := descriptor.Load(args[0])
			if err != nil {
				return err
			}
			if err := inv.Validate(); err != nil {
				return err
			}
			fmt.Printf("%s: OK (%d args, %d outputs)\n", args[0], len(inv.Args), len(inv.Outputs))
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.Load(configPath)
}

func buildRunner(cfg *config.Config) (*runner.Runner, error) {
	return runner.New(runner.Options{
		Runtime:        engine.Runtime(cfg.Engine.Runtime),
		EnginePath:     cfg.Engine.Path(),
		ExtraArgs:      cfg.Engine.ExtraArgs,
		ImageOverrides: cfg.Images.Overrides,
		DataDir:        cfg.DataDir,
		Environ:        cfg.Environ,
	})
}
