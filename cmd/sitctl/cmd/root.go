package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sitctl",
	Short: "Sensitive information type scan CLI",
	Long: `sitctl drives SIT builder scans from the command line.

It admits local files or whole directory trees into a scan, follows the
scan's progress and retrieves the aggregated candidate results.

For bridged scans the delegated credential is read from the
SITCTL_CREDENTIAL environment variable; it is never accepted as a flag.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: SITCTL_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("SITCTL_API_URL")
	}
	if flagAPIURL == "" {
		flagAPIURL = "http://localhost:8080"
	}
}

func newClientFromFlags() *Client {
	return NewClient(flagAPIURL, os.Getenv("SITCTL_CREDENTIAL"), flagVerbose)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		if version == "" {
			version = "dev"
		}
		fmt.Printf("sitctl %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}
