package bridge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/spf13/cobra"
)

var (
	certCreateCmd = &cobra.Command{
		Use:   "create [identity]",
		Short: "Creates a key pair and a certificate for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			curveName, _ := cmd.Flags().GetString("curve")
			curve, err := crypto.ParseCurve(curveName)
			if err != nil {
				return err
			}
			dataArgs, _ := cmd.Flags().GetStringArray("data")
			customData, err := parseCustomData(dataArgs)
			if err != nil {
				return err
			}
			priv, cert, err := rpcClient.CreateCertificate(cmd.Context(), args[0], curve, customData)
			if err != nil {
				return err
			}
			fmt.Printf("private=%s\n%s", util.FormatBinary(priv), cert)
			return nil
		},
	}
	certGetCmd = &cobra.Command{
		Use:   "get [identity]",
		Short: "Reads the certificate of an identity (without identity the root certificate)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cert []byte
				err  error
			)
			if len(args) == 0 {
				cert, err = rpcClient.RootCertificate(cmd.Context())
			} else {
				cert, err = rpcClient.Certificate(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s", cert)
			return nil
		},
	}
	certVerifyCmd = &cobra.Command{
		Use:   "verify [certificate] [root]",
		Short: "Verifies a certificate against a root (default: the backend root)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args...)
			if err != nil {
				return err
			}
			var root []byte
			if len(values) == 2 {
				root = values[1]
			} else if root, err = rpcClient.RootCertificate(cmd.Context()); err != nil {
				return err
			}
			ok, err := rpcClient.VerifyCertificate(cmd.Context(), values[0], root)
			if err != nil {
				return err
			}
			fmt.Printf("verified=%v\n", ok)
			return nil
		},
	}
	certParseCmd = &cobra.Command{
		Use:   "parse [certificate]",
		Short: "Prints the key-value data of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := util.ReadValue(args[0])
			if err != nil {
				return err
			}
			data, err := rpcClient.ParseCertificate(cmd.Context(), cert)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, util.FormatBinary(data[k]))
			}
			return nil
		},
	}
	certRevokeCmd = &cobra.Command{
		Use:   "revoke [identity] [private-key]",
		Short: "Revokes the certificate of an identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := util.ReadValue(args[1])
			if err != nil {
				return err
			}
			if err := rpcClient.RevokeCertificate(cmd.Context(), args[0], priv); err != nil {
				return err
			}
			fmt.Printf("revoked %s\n", args[0])
			return nil
		},
	}
	certCRLCmd = &cobra.Command{
		Use:   "crl",
		Short: "Shows when the revocation list was refreshed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			last, next, err := rpcClient.CRLInfo(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("last=%s\nnext=%s\n", formatTime(last), formatTime(next))
			return nil
		},
	}
	certIsRevokedCmd = &cobra.Command{
		Use:   "is-revoked [certificate]",
		Short: "Checks a certificate against the revocation list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := util.ReadValue(args[0])
			if err != nil {
				return err
			}
			revoked, err := rpcClient.IsRevoked(cmd.Context(), cert)
			if err != nil {
				return err
			}
			fmt.Printf("revoked=%v\n", revoked)
			return nil
		},
	}
)

func init() {
	certCreateCmd.Flags().String("curve", crypto.CurveP256.String(), util.WrapString("Curve of the certificate key (ed25519, p256)"))
	certCreateCmd.Flags().StringArray("data", nil, util.WrapString("Custom data as key=value (repeatable, values accept @file and b64:)"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseCustomData parses key=value pairs
func parseCustomData(args []string) (map[string][]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data := make(map[string][]byte, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid custom data format: %s (expected key=value)", arg)
		}
		v, err := util.ReadValue(value)
		if err != nil {
			return nil, err
		}
		data[key] = v
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
