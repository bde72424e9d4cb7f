package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "acsctl",
	Short: "Operator CLI for the acsd router's tenant control surface",
	Long: `acsctl drives the router's control endpoints: start or stop a
tenant's worker, list the tenant registry, or inspect one tenant's
health record.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("router", "localhost:3001", "Router control address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
