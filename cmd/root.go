package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/marines/cmd/marine"
	"github.com/ValentinKolb/marines/cmd/serve"
	"github.com/ValentinKolb/marines/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "marines",
		Short: "multi-user marine collection server",
		Long: fmt.Sprintf(`marines (v%s)

A multi-user TCP service managing a collection of space marines.
Every user owns the records they created, all records are persisted
write-through to a database.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of marines",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("marines v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper for all commands
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(marine.MarineCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
