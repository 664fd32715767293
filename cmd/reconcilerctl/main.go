package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "reconcilerctl",
		Short:        "Operator tool for the PAYONE payment reconciler",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Print the resulting payment as JSON")

	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(sequenceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
