package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

type rootOptions struct {
	configPath string
	dev        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tools for the comics payment service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "developer mode (in-memory gateway without a stripe key)")

	rootCmd.AddCommand(reconcileCmd(opts))
	rootCmd.AddCommand(replayRevokeCmd(opts))
	rootCmd.AddCommand(expireCmd(opts))
	rootCmd.AddCommand(invoiceCmd(opts))
	rootCmd.AddCommand(revenueCmd(opts))
	rootCmd.AddCommand(tokenCmd(opts))
	return rootCmd
}
