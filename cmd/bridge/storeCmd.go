package bridge

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/lib/identifier"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/spf13/cobra"
)

var (
	saveCmd = &cobra.Command{
		Use:   "save [id] [value]",
		Short: "Saves a value under an id",
		Long:  `Saves a value under an id. With --role the id is the numeric handle of a key and the record id is derived from role and handle. Values accept @file and b64: prefixes.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := storeTypeFlag(cmd)
			if err != nil {
				return err
			}
			value, err := util.ReadValue(args[1])
			if err != nil {
				return err
			}
			password, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			id, err := recordID(cmd, args[0])
			if err != nil {
				return err
			}
			if err := rpcClient.Save(cmd.Context(), t, id, value, password); err != nil {
				return err
			}
			fmt.Printf("saved %s (%s)\n", id, t)
			return nil
		},
	}
	loadCmd = &cobra.Command{
		Use:   "load [id]",
		Short: "Loads the value of an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			id, err := recordID(cmd, args[0])
			if err != nil {
				return err
			}

			var value []byte
			if typeName, _ := cmd.Flags().GetString("type"); typeName != "" {
				t, err := store.ParseStoreType(typeName)
				if err != nil {
					return err
				}
				value, err = rpcClient.LoadFrom(cmd.Context(), t, id, password)
				if err != nil {
					return err
				}
			} else if value, err = rpcClient.Load(cmd.Context(), id, password); err != nil {
				return err
			}
			fmt.Println(util.FormatBinary(value))
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [id]",
		Short: "Removes an id from both tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := recordID(cmd, args[0])
			if err != nil {
				return err
			}
			if err := rpcClient.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", id)
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{saveCmd, loadCmd, removeCmd} {
		cmd.Flags().String("role", "", util.WrapString("Interpret the id as the handle of a key with this role (private, public, certificate, symmetric)"))
	}
	for _, cmd := range []*cobra.Command{saveCmd, loadCmd} {
		cmd.Flags().String("password", "", util.WrapString("Password the record is encrypted with (accepts @file and b64:)"))
	}
	saveCmd.Flags().String("type", store.StoreTypePermanent.String(), util.WrapString("Table to save to (permanent, temporary)"))
	loadCmd.Flags().String("type", "", util.WrapString("Table to load from (permanent, temporary). Empty searches temporary first"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// recordID derives the record id from a role and handle if --role is set
func recordID(cmd *cobra.Command, arg string) (string, error) {
	roleName, _ := cmd.Flags().GetString("role")
	if roleName == "" {
		return arg, nil
	}
	role, err := identifier.ParseRole(roleName)
	if err != nil {
		return "", err
	}
	handle, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return "", fmt.Errorf("handle must be a number: %w", err)
	}
	return identifier.Key(role, handle)
}

func storeTypeFlag(cmd *cobra.Command) (store.StoreType, error) {
	typeName, _ := cmd.Flags().GetString("type")
	return store.ParseStoreType(typeName)
}

func passwordFlag(cmd *cobra.Command) ([]byte, error) {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		return nil, nil
	}
	return util.ReadValue(password)
}
