package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tensorsched",
		Short: "Exercise the per-device execution scheduler standalone",
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: built-in defaults + TENSORSCHED_* env)")
	if err := viper.BindPFlag("config", root.PersistentFlags().Lookup("config")); err != nil {
		fmt.Printf("failed to bind flag config: %v\n", err)
	}

	root.AddCommand(newBenchCmd())
	root.AddCommand(newInspectCmd())
	return root
}
