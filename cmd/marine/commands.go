package marine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/marines/cmd/util"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const marineFlagHelp = `The marine as json, e.g. {"name": "Titus", "coordinates": {"x": 1, "y": 2}, "health": 100, "category": "TACTICAL", "weaponType": "BOLT_RIFLE", "meleeWeapon": "CHAIN_SWORD", "chapter": {"name": "Ultramarines", "world": "Macragge"}}`

var (
	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Registers the user given by --user and --password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.Register(viper.GetString("user"), viper.GetString("password")))
		},
	}
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks the connection and the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Ping(); err != nil {
				return wrapAuth(err)
			}
			fmt.Printf("authenticated as %s\n", rpcClient.User())
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the collection type, its size and the newest creation date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.Info())
		},
	}
	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Prints all marines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.Show())
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [key]",
		Short: "Inserts a new marine under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, m, err := keyAndMarine(args[0])
			if err != nil {
				return err
			}
			return printBody(rpcClient.Insert(key, m))
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [id]",
		Short: "Replaces the marine with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, m, err := keyAndMarine(args[0])
			if err != nil {
				return err
			}
			return printBody(rpcClient.Update(id, m))
		},
	}
	removeKeyCmd = &cobra.Command{
		Use:   "remove-key [key]",
		Short: "Removes the marine stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseInt(args[0], "key")
			if err != nil {
				return err
			}
			return printBody(rpcClient.RemoveKey(key))
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all marines owned by the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.Clear())
		},
	}
	removeLowerCmd = &cobra.Command{
		Use:   "remove-lower",
		Short: "Removes all own marines with less health than the given one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := util.ParseMarine(viper.GetString("marine"))
			if err != nil {
				return err
			}
			return printBody(rpcClient.RemoveLower(m))
		},
	}
	replaceIfLowerCmd = &cobra.Command{
		Use:   "replace-if-lower [key]",
		Short: "Replaces the marine under a key if the new one has less health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, m, err := keyAndMarine(args[0])
			if err != nil {
				return err
			}
			return printBody(rpcClient.ReplaceIfLower(key, m))
		},
	}
	removeLowerKeyCmd = &cobra.Command{
		Use:   "remove-lower-key [key]",
		Short: "Removes all own marines with a key lower than the given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseInt(args[0], "key")
			if err != nil {
				return err
			}
			return printBody(rpcClient.RemoveLowerKey(key))
		},
	}
	groupCountingCmd = &cobra.Command{
		Use:   "group-counting-by-creation-date",
		Short: "Prints the number of marines per creation date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.GroupCountingByCreationDate())
		},
	}
	filterCategoryCmd = &cobra.Command{
		Use:   "filter-greater-than-category [category]",
		Short: "Prints all marines whose category is declared after the given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := marine.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return printBody(rpcClient.FilterGreaterThanCategory(c))
		},
	}
	printAscendingCmd = &cobra.Command{
		Use:   "print-ascending",
		Short: "Prints all marines ordered by health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBody(rpcClient.PrintAscending())
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{insertCmd, updateCmd, removeLowerCmd, replaceIfLowerCmd} {
		cmd.Flags().String("marine", "", util.WrapString(marineFlagHelp))
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseInt(s, name string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return v, nil
}

func keyAndMarine(arg string) (int64, marine.Marine, error) {
	key, err := parseInt(arg, "key")
	if err != nil {
		return 0, marine.Marine{}, err
	}
	m, err := util.ParseMarine(viper.GetString("marine"))
	return key, m, err
}

// printBody prints a response body. Empty bodies mean success.
func printBody(body string, err error) error {
	if err != nil {
		return wrapAuth(err)
	}
	body = strings.TrimRight(body, "\n")
	if body == "" {
		fmt.Println("ok")
		return nil
	}
	fmt.Println(body)
	return nil
}

func wrapAuth(err error) error {
	if errors.Is(err, client.ErrAuthFailed) {
		return fmt.Errorf("%w (register first or check --user and --password)", err)
	}
	return err
}
