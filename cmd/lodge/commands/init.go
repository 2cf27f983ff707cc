package commands

import (
	"github.com/dyluth/lodge/internal/instance"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit     bool
	initDir       string
	initInstance  string
	initRedisURL  string
	initOperators []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Lodge workspace",
	Long: `Initialize a new Lodge workspace in the current directory.

Creates:
  • lodge.yml - Instance, Redis and lifecycle settings
  • templates/centrifugal-pump.json - Example datasheet template

Use --force to reinitialize an existing workspace (WARNING: overwrites lodge.yml).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to initialize")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing lodge.yml")
	initCmd.Flags().StringVar(&initInstance, "instance", "default", "Instance name (namespaces every Redis key)")
	initCmd.Flags().StringVar(&initRedisURL, "redis-url", "", "Redis URL (default redis://localhost:6379/0)")
	initCmd.Flags().StringSliceVar(&initOperators, "operator", nil, "Actor allowed to unlock ratings (repeatable)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := instance.ValidateName(initInstance); err != nil {
		return printer.Error("invalid instance name", err.Error(), nil)
	}

	created, err := scaffold.Initialize(scaffold.Options{
		Dir:       initDir,
		Instance:  initInstance,
		RedisURL:  initRedisURL,
		Operators: initOperators,
		Force:     forceInit,
	})
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(printer.Out, created)
	return nil
}
