package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sugang",
	Short: "Course registration backend",
	Long: `sugang is the course registration backend. It serves the HTTP API,
runs the registration queue worker, applies database migrations, and imports
course catalogs from object storage.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
