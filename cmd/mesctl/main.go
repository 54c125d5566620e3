package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mesctl",
		Short: "nimo-mes administration",
		Long:  "mesctl seeds reference data, imports part spreadsheets and issues API tokens.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			godotenv.Load()
		},
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newRoutesCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mesctl %s (built: %s)\n", Version, BuildTime)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
