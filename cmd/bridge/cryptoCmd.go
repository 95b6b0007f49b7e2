package bridge

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/spf13/cobra"
)

var (
	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Creates a key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			curveName, _ := cmd.Flags().GetString("curve")
			curve, err := crypto.ParseCurve(curveName)
			if err != nil {
				return err
			}
			priv, pub, err := rpcClient.Keygen(cmd.Context(), curve)
			if err != nil {
				return err
			}
			fmt.Printf("private=%s\npublic=%s\n", util.FormatBinary(priv), util.FormatBinary(pub))
			return nil
		},
	}
	hashCmd = &cobra.Command{
		Use:   "hash [data]",
		Short: "Computes the digest of data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fnName, _ := cmd.Flags().GetString("hash")
			fn, err := crypto.ParseHashFunc(fnName)
			if err != nil {
				return err
			}
			data, err := util.ReadValue(args[0])
			if err != nil {
				return err
			}
			digest, err := rpcClient.Hash(cmd.Context(), fn, data)
			if err != nil {
				return err
			}
			fmt.Printf("%s=%x\n", fn, digest)
			return nil
		},
	}
	signCmd = &cobra.Command{
		Use:   "sign [private-key] [data]",
		Short: "Signs data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args...)
			if err != nil {
				return err
			}
			signature, err := rpcClient.Sign(cmd.Context(), values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Println(util.FormatBinary(signature))
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [public-key|certificate] [data] [signature]",
		Short: "Verifies a signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args...)
			if err != nil {
				return err
			}
			var ok bool
			if withCert, _ := cmd.Flags().GetBool("certificate"); withCert {
				ok, err = rpcClient.VerifyWithCertificate(cmd.Context(), values[0], values[1], values[2])
			} else {
				ok, err = rpcClient.Verify(cmd.Context(), values[0], values[1], values[2])
			}
			if err != nil {
				return err
			}
			fmt.Printf("verified=%v\n", ok)
			return nil
		},
	}
	encryptCmd = &cobra.Command{
		Use:   "encrypt [data]",
		Short: "Encrypts data for one or more recipients",
		Long:  `Encrypts data for one or more recipients. Recipients are given as --recipient identity=public-key or as --certificate (the identity is the common name of the certificate). Keys and certificates accept @file and b64: prefixes.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := util.ReadValue(args[0])
			if err != nil {
				return err
			}
			recipientArgs, _ := cmd.Flags().GetStringArray("recipient")
			certArgs, _ := cmd.Flags().GetStringArray("certificate")

			var envelope []byte
			switch {
			case len(recipientArgs) > 0 && len(certArgs) > 0:
				return fmt.Errorf("use either --recipient or --certificate")
			case len(certArgs) > 0:
				certs, err := readValues(certArgs...)
				if err != nil {
					return err
				}
				envelope, err = rpcClient.EncryptFor(cmd.Context(), data, certs...)
				if err != nil {
					return err
				}
			default:
				recipients, err := parseRecipients(recipientArgs)
				if err != nil {
					return err
				}
				envelope, err = rpcClient.Encrypt(cmd.Context(), data, recipients)
				if err != nil {
					return err
				}
			}
			fmt.Println(util.FormatBinary(envelope))
			return nil
		},
	}
	decryptCmd = &cobra.Command{
		Use:   "decrypt [identity] [private-key] [data]",
		Short: "Decrypts data sealed for an identity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args[1:]...)
			if err != nil {
				return err
			}
			plain, err := rpcClient.Decrypt(cmd.Context(), args[0], values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Println(util.FormatBinary(plain))
			return nil
		},
	}
	encryptPasswordCmd = &cobra.Command{
		Use:   "encrypt-password [password] [data]",
		Short: "Encrypts data with a password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args...)
			if err != nil {
				return err
			}
			sealed, err := rpcClient.EncryptPassword(cmd.Context(), values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Println(util.FormatBinary(sealed))
			return nil
		},
	}
	decryptPasswordCmd = &cobra.Command{
		Use:   "decrypt-password [password] [data]",
		Short: "Decrypts data encrypted with a password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args...)
			if err != nil {
				return err
			}
			plain, err := rpcClient.DecryptPassword(cmd.Context(), values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Println(util.FormatBinary(plain))
			return nil
		},
	}
)

func init() {
	keygenCmd.Flags().String("curve", crypto.CurveP256.String(), util.WrapString("Curve of the key pair (ed25519, p256, x25519)"))
	hashCmd.Flags().String("hash", "sha256", util.WrapString("Hash function (md5, sha256, sha384, sha512)"))
	verifyCmd.Flags().Bool("certificate", false, util.WrapString("The first argument is a certificate instead of a public key"))
	encryptCmd.Flags().StringArray("recipient", nil, util.WrapString("Recipient as identity=public-key (repeatable)"))
	encryptCmd.Flags().StringArray("certificate", nil, util.WrapString("Certificate of a recipient (repeatable)"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// readValues converts every argument with util.ReadValue
func readValues(args ...string) ([][]byte, error) {
	values := make([][]byte, len(args))
	for i, arg := range args {
		v, err := util.ReadValue(arg)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// parseRecipients parses identity=public-key pairs
func parseRecipients(args []string) ([]crypto.Recipient, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("encrypt needs at least one --recipient or --certificate")
	}
	recipients := make([]crypto.Recipient, 0, len(args))
	for _, arg := range args {
		identity, key, ok := strings.Cut(arg, "=")
		if !ok || identity == "" {
			return nil, fmt.Errorf("invalid recipient format: %s (expected identity=public-key)", arg)
		}
		pub, err := util.ReadValue(key)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, crypto.Recipient{Identity: identity, PublicKey: pub})
	}
	return recipients, nil
}
