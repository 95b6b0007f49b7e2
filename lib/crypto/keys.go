package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"

	"github.com/ValentinKolb/kBridge/lib/errs"
)

// Encoded keys carry the curve in their first byte:
//
//	ed25519  1 | 64 byte private key   / 1 | 32 byte public key
//	p256     2 | PKCS#8 DER            / 2 | PKIX DER
//	x25519   3 | 32 byte scalar        / 3 | 32 byte point

const (
	x25519KeySize = 32
)

// privateKey is a decoded private key
type privateKey struct {
	curve  Curve
	ed     ed25519.PrivateKey
	ecdsa  *ecdsa.PrivateKey
	x25519 *[x25519KeySize]byte
}

// publicKey is a decoded public key
type publicKey struct {
	curve  Curve
	ed     ed25519.PublicKey
	ecdsa  *ecdsa.PublicKey
	x25519 *[x25519KeySize]byte
}

func encodeKey(curve Curve, raw []byte) []byte {
	out := make([]byte, 1+len(raw))
	out[0] = byte(curve)
	copy(out[1:], raw)
	return out
}

func decodePrivateKey(data []byte) (*privateKey, error) {
	if len(data) < 2 {
		return nil, errs.Validationf("private key too short: %d bytes", len(data))
	}
	key := &privateKey{curve: Curve(data[0])}
	raw := data[1:]

	switch key.curve {
	case CurveEd25519:
		if len(raw) != ed25519.PrivateKeySize {
			return nil, errs.Validationf("ed25519 private key has %d bytes, expected %d", len(raw), ed25519.PrivateKeySize)
		}
		key.ed = ed25519.PrivateKey(raw)
	case CurveP256:
		parsed, err := x509.ParsePKCS8PrivateKey(raw)
		if err != nil {
			return nil, errs.Wrap(errs.ErrValidation, err, "parse p256 private key")
		}
		ec, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errs.Validationf("p256 private key holds a %T", parsed)
		}
		key.ecdsa = ec
	case CurveX25519:
		if len(raw) != x25519KeySize {
			return nil, errs.Validationf("x25519 private key has %d bytes, expected %d", len(raw), x25519KeySize)
		}
		key.x25519 = new([x25519KeySize]byte)
		copy(key.x25519[:], raw)
	default:
		return nil, errs.Validationf("unknown private key type %d", data[0])
	}
	return key, nil
}

func decodePublicKey(data []byte) (*publicKey, error) {
	if len(data) < 2 {
		return nil, errs.Validationf("public key too short: %d bytes", len(data))
	}
	key := &publicKey{curve: Curve(data[0])}
	raw := data[1:]

	switch key.curve {
	case CurveEd25519:
		if len(raw) != ed25519.PublicKeySize {
			return nil, errs.Validationf("ed25519 public key has %d bytes, expected %d", len(raw), ed25519.PublicKeySize)
		}
		key.ed = ed25519.PublicKey(raw)
	case CurveP256:
		parsed, err := x509.ParsePKIXPublicKey(raw)
		if err != nil {
			return nil, errs.Wrap(errs.ErrValidation, err, "parse p256 public key")
		}
		ec, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return nil, errs.Validationf("p256 public key holds a %T", parsed)
		}
		key.ecdsa = ec
	case CurveX25519:
		if len(raw) != x25519KeySize {
			return nil, errs.Validationf("x25519 public key has %d bytes, expected %d", len(raw), x25519KeySize)
		}
		key.x25519 = new([x25519KeySize]byte)
		copy(key.x25519[:], raw)
	default:
		return nil, errs.Validationf("unknown public key type %d", data[0])
	}
	return key, nil
}

// EncodePublicKey encodes a crypto.PublicKey of a supported curve. ECDSA
// keys must use P-256.
func EncodePublicKey(pub any) ([]byte, error) {
	switch k := pub.(type) {
	case ed25519.PublicKey:
		return encodeKey(CurveEd25519, k), nil
	case *ecdsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(k)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "marshal p256 public key")
		}
		return encodeKey(CurveP256, der), nil
	default:
		return nil, errs.Validationf("unsupported public key type %T", pub)
	}
}

// EncodePrivateKey encodes a crypto.PrivateKey of a supported curve.
func EncodePrivateKey(priv any) ([]byte, error) {
	switch k := priv.(type) {
	case ed25519.PrivateKey:
		return encodeKey(CurveEd25519, k), nil
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalPKCS8PrivateKey(k)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "marshal p256 private key")
		}
		return encodeKey(CurveP256, der), nil
	default:
		return nil, errs.Validationf("unsupported private key type %T", priv)
	}
}

// DecodeSigner returns the standard library key behind an encoded signing
// key, e.g. to sign certificates with it.
func DecodeSigner(privateKey []byte) (gocrypto.Signer, error) {
	key, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	switch key.curve {
	case CurveEd25519:
		return key.ed, nil
	case CurveP256:
		return key.ecdsa, nil
	default:
		return nil, errs.Validationf("%s keys cannot sign", key.curve)
	}
}

// PublicKeyOf derives the encoded public key of an encoded private key.
func PublicKeyOf(privateKey []byte) ([]byte, error) {
	key, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	switch key.curve {
	case CurveEd25519:
		return EncodePublicKey(key.ed.Public())
	case CurveP256:
		return EncodePublicKey(&key.ecdsa.PublicKey)
	default:
		pub, err := x25519Public(key.x25519)
		if err != nil {
			return nil, err
		}
		return encodeKey(CurveX25519, pub[:]), nil
	}
}

// PublicKeyFromCertificate extracts the encoded public key of a PEM or DER
// certificate.
func PublicKeyFromCertificate(certificate []byte) ([]byte, error) {
	cert, err := ParseCertificate(certificate)
	if err != nil {
		return nil, err
	}
	return EncodePublicKey(cert.PublicKey)
}

// ParseCertificate parses a PEM encoded certificate, falling back to DER.
func ParseCertificate(certificate []byte) (*x509.Certificate, error) {
	der := certificate
	if block, _ := pem.Decode(certificate); block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "parse certificate")
	}
	return cert, nil
}
