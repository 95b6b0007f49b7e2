package crypto

import (
	"fmt"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("crypto")

// --------------------------------------------------------------------------
// Algorithms
// --------------------------------------------------------------------------

// Curve selects the key algorithm of Keygen. It is the one byte payload of a
// CurveType field.
type Curve uint8

const (
	CurveUnknown Curve = iota
	CurveEd25519       // signing
	CurveP256          // signing and encryption (ECDH)
	CurveX25519        // encryption (nacl box)
)

func (c Curve) String() string {
	switch c {
	case CurveEd25519:
		return "ed25519"
	case CurveP256:
		return "p256"
	case CurveX25519:
		return "x25519"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCurve converts the CLI representation of a curve.
func ParseCurve(s string) (Curve, error) {
	switch s {
	case "ed25519":
		return CurveEd25519, nil
	case "p256", "p-256", "secp256r1":
		return CurveP256, nil
	case "x25519", "curve25519":
		return CurveX25519, nil
	default:
		return CurveUnknown, errs.Validationf("invalid curve %q (expected ed25519, p256 or x25519)", s)
	}
}

// HashFunc selects the digest of Hash. It is the one byte payload of a
// HashFunc field.
type HashFunc uint8

const (
	HashDefault HashFunc = iota // resolves to SHA256
	HashMD5
	HashSHA256
	HashSHA384
	HashSHA512
)

func (h HashFunc) String() string {
	switch h {
	case HashMD5:
		return "md5"
	case HashSHA384:
		return "sha384"
	case HashSHA512:
		return "sha512"
	default:
		return "sha256"
	}
}

// ParseHashFunc converts the CLI representation of a hash function.
func ParseHashFunc(s string) (HashFunc, error) {
	switch s {
	case "md5":
		return HashMD5, nil
	case "sha256", "":
		return HashSHA256, nil
	case "sha384":
		return HashSHA384, nil
	case "sha512":
		return HashSHA512, nil
	default:
		return HashDefault, errs.Validationf("invalid hash function %q (expected md5, sha256, sha384 or sha512)", s)
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Recipient is one addressee of Encrypt.
type Recipient struct {
	// Identity names the recipient inside the envelope, Decrypt selects the
	// entry to open by it
	Identity string
	// PublicKey is an encoded public key of an encryption capable curve
	PublicKey []byte
}

// Provider performs the cryptographic operations of the backend. Keys are
// exchanged in the encoding of this package (see EncodePublicKey). Every
// failure is marked errs.ErrCrypto, malformed input errs.ErrValidation.
type Provider interface {
	// Keygen creates a key pair of the given curve
	Keygen(curve Curve) (privateKey, publicKey []byte, err error)

	// EncryptPassword encrypts data with a key derived from password
	EncryptPassword(password, data []byte) ([]byte, error)
	// DecryptPassword reverses EncryptPassword
	DecryptPassword(password, data []byte) ([]byte, error)

	// Encrypt seals data for every recipient in one envelope
	Encrypt(data []byte, recipients []Recipient) ([]byte, error)
	// Decrypt opens the envelope entry of identity with its private key
	Decrypt(identity string, privateKey, data []byte) ([]byte, error)

	// Sign signs data with a signing capable private key
	Sign(privateKey, data []byte) ([]byte, error)
	// Verify reports whether signature is a valid signature of data
	Verify(publicKey, data, signature []byte) (bool, error)

	// Hash returns the digest of data
	Hash(fn HashFunc, data []byte) []byte
}
