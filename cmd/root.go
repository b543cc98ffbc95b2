package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/casevm/casevm/machine/luavm"
)

var (
	logLevel string // Log verbosity level

	// CLI flags for run
	computerPath string // Computer description (YAML)
	ticks        int64  // Number of ticks to run
	statePath    string // Tag store file restored before and written after the run
	showScreen   bool   // Print the screen contents after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "casevm",
	Short: "Sandboxed computers driven by firmware scripts",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd boots a computer from its description and ticks it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a computer and run it for a number of ticks",
	Run: func(cmd *cobra.Command, args []string) {
		if computerPath == "" {
			logrus.Fatalf("Computer file not provided. Exiting.")
		}
		cf, err := loadComputerFile(computerPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report, err := runComputer(cf, ticks, statePath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report.Print(os.Stdout, showScreen)
		logrus.Info("Run complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&computerPath, "computer", "configs/computer.yaml", "Computer description file")
	runCmd.Flags().Int64Var(&ticks, "ticks", 200, "Number of ticks to run")
	runCmd.Flags().StringVar(&statePath, "state", "", "Tag store file to restore from and save to")
	runCmd.Flags().BoolVar(&showScreen, "screen", true, "Print the screen contents after the run")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(imageCmd)
}
