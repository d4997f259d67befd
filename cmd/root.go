package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/logs"
	"github.com/cube2222/octojit/physical"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octojit",
	Short: "Compiles relational execution units into WebAssembly and runs them.",
	Long:  ``,
	Example: `octojit compile plan.json -o query.wasm
octojit explain plan.json --graph | dot -Tpng > plan.png
octojit run plan.json --input rows.jsonl --hash-table 0:id:users.jsonl`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !logToStderr {
			logs.InitializeFileLogger()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logs.CloseLogger()
	},
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logs.CloseLogger()
		os.Exit(1)
	}
}

var configPath string
var logToStderr bool

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, defaults to ~/.octojit/octojit.yml.")
	rootCmd.PersistentFlags().BoolVar(&logToStderr, "log-stderr", false, "Log to stderr instead of the log file.")
}

func readConfig() (*config.Config, error) {
	if configPath == "" {
		return config.ReadDefaultConfig()
	}
	return config.ReadConfig(configPath)
}

func readOptions() (config.CodegenOptions, config.ExecutionOptions, error) {
	cfg, err := readConfig()
	if err != nil {
		return config.CodegenOptions{}, config.ExecutionOptions{}, fmt.Errorf("couldn't read configuration: %w", err)
	}
	codegenOptions, err := cfg.CodegenOptions()
	if err != nil {
		return config.CodegenOptions{}, config.ExecutionOptions{}, fmt.Errorf("invalid codegen configuration: %w", err)
	}
	executionOptions, err := cfg.ExecutionOptions()
	if err != nil {
		return config.CodegenOptions{}, config.ExecutionOptions{}, fmt.Errorf("invalid execution configuration: %w", err)
	}
	return codegenOptions, executionOptions, nil
}

func readUnit(path string) (*physical.RelAlgExecutionUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read plan: %w", err)
	}
	unit, err := physical.ParseUnit(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse plan %s: %w", path, err)
	}
	return unit, nil
}
