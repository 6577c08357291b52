package marine

import (
	"github.com/ValentinKolb/marines/cmd/util"
	"github.com/ValentinKolb/marines/rpc/client"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Logger = logger.GetLogger("cli")

	rpcClient *client.RPCClient

	// MarineCommands represents the marine command group
	MarineCommands = &cobra.Command{
		Use:               "marine",
		Short:             "Send commands to a marines server",
		PersistentPreRunE: setupMarineClient,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if rpcClient == nil {
				return nil
			}
			return rpcClient.Close()
		},
	}
)

func init() {
	// Add common RPC flags to the marine command
	util.SetupRPCClientFlags(MarineCommands)

	key := "log-level"
	MarineCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	MarineCommands.AddCommand(registerCmd)
	MarineCommands.AddCommand(pingCmd)
	MarineCommands.AddCommand(infoCmd)
	MarineCommands.AddCommand(showCmd)
	MarineCommands.AddCommand(insertCmd)
	MarineCommands.AddCommand(updateCmd)
	MarineCommands.AddCommand(removeKeyCmd)
	MarineCommands.AddCommand(clearCmd)
	MarineCommands.AddCommand(removeLowerCmd)
	MarineCommands.AddCommand(replaceIfLowerCmd)
	MarineCommands.AddCommand(removeLowerKeyCmd)
	MarineCommands.AddCommand(groupCountingCmd)
	MarineCommands.AddCommand(filterCategoryCmd)
	MarineCommands.AddCommand(printAscendingCmd)
	MarineCommands.AddCommand(perfTestCmd)
}

// setupMarineClient connects to the server and sets the credentials
func setupMarineClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	Logger.Debugf("client configuration:%s", config.String())

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	// Create the client
	rpcClient, err = client.NewRPCClient(
		*config,
		t,
		s,
	)
	if err != nil {
		return err
	}

	rpcClient.Login(viper.GetString("user"), viper.GetString("password"))
	return nil
}
