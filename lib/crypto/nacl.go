package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	operationsCounter = metrics.NewCounter(`kbridge_crypto_operations_total`)
	failuresCounter   = metrics.NewCounter(`kbridge_crypto_failures_total`)
)

const (
	nonceSize = 24
	keySize   = 32
	saltSize  = 16
)

// KDFParams are the argon2id parameters of the pass-phrase encryption
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follow the argon2id recommendation for interactive use
var DefaultKDFParams = KDFParams{Time: 2, Memory: 19 * 1024, Threads: 1}

// NaClProvider implements Provider with ed25519, ECDSA P-256, argon2id and
// the nacl box and secretbox constructions.
type NaClProvider struct {
	kdf  KDFParams
	rand io.Reader
}

// NewNaClProvider creates a provider using crypto/rand.
func NewNaClProvider(kdf KDFParams) *NaClProvider {
	return &NaClProvider{kdf: kdf, rand: rand.Reader}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see crypto.Provider)
// --------------------------------------------------------------------------

func (p *NaClProvider) Keygen(curve Curve) ([]byte, []byte, error) {
	operationsCounter.Inc()

	switch curve {
	case CurveEd25519:
		pub, priv, err := ed25519.GenerateKey(p.rand)
		if err != nil {
			return nil, nil, p.fail(err, "generate ed25519 key")
		}
		return encodeKey(CurveEd25519, priv), encodeKey(CurveEd25519, pub), nil

	case CurveP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), p.rand)
		if err != nil {
			return nil, nil, p.fail(err, "generate p256 key")
		}
		privEnc, err := EncodePrivateKey(priv)
		if err != nil {
			return nil, nil, err
		}
		pubEnc, err := EncodePublicKey(&priv.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		return privEnc, pubEnc, nil

	case CurveX25519:
		pub, priv, err := box.GenerateKey(p.rand)
		if err != nil {
			return nil, nil, p.fail(err, "generate x25519 key")
		}
		return encodeKey(CurveX25519, priv[:]), encodeKey(CurveX25519, pub[:]), nil

	default:
		return nil, nil, errs.Validationf("invalid curve %d", uint8(curve))
	}
}

func (p *NaClProvider) EncryptPassword(password, data []byte) ([]byte, error) {
	operationsCounter.Inc()
	if len(password) == 0 {
		return nil, errs.Validationf("password must not be empty")
	}

	out := make([]byte, saltSize+nonceSize, saltSize+nonceSize+len(data)+secretbox.Overhead)
	if _, err := io.ReadFull(p.rand, out); err != nil {
		return nil, p.fail(err, "read salt and nonce")
	}

	key := p.deriveKey(password, out[:saltSize])
	var nonce [nonceSize]byte
	copy(nonce[:], out[saltSize:])

	return secretbox.Seal(out, data, &nonce, key), nil
}

func (p *NaClProvider) DecryptPassword(password, data []byte) ([]byte, error) {
	operationsCounter.Inc()
	if len(password) == 0 {
		return nil, errs.Validationf("password must not be empty")
	}
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		failuresCounter.Inc()
		return nil, errs.Cryptof("ciphertext too short: %d bytes", len(data))
	}

	key := p.deriveKey(password, data[:saltSize])
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		failuresCounter.Inc()
		return nil, errs.Cryptof("wrong password or corrupted ciphertext")
	}
	return plain, nil
}

func (p *NaClProvider) Encrypt(data []byte, recipients []Recipient) ([]byte, error) {
	operationsCounter.Inc()
	return sealEnvelope(p.rand, data, recipients)
}

func (p *NaClProvider) Decrypt(identity string, privateKey, data []byte) ([]byte, error) {
	operationsCounter.Inc()
	key, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	plain, err := openEnvelope(identity, key, data)
	if err != nil {
		failuresCounter.Inc()
		return nil, err
	}
	return plain, nil
}

func (p *NaClProvider) Sign(privateKey, data []byte) ([]byte, error) {
	operationsCounter.Inc()
	key, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	switch key.curve {
	case CurveEd25519:
		return ed25519.Sign(key.ed, data), nil
	case CurveP256:
		digest := sha256.Sum256(data)
		sig, err := ecdsa.SignASN1(p.rand, key.ecdsa, digest[:])
		if err != nil {
			return nil, p.fail(err, "sign")
		}
		return sig, nil
	default:
		return nil, errs.Validationf("%s keys cannot sign", key.curve)
	}
}

func (p *NaClProvider) Verify(publicKey, data, signature []byte) (bool, error) {
	operationsCounter.Inc()
	key, err := decodePublicKey(publicKey)
	if err != nil {
		return false, err
	}

	switch key.curve {
	case CurveEd25519:
		return ed25519.Verify(key.ed, data, signature), nil
	case CurveP256:
		digest := sha256.Sum256(data)
		return ecdsa.VerifyASN1(key.ecdsa, digest[:], signature), nil
	default:
		return false, errs.Validationf("%s keys cannot verify signatures", key.curve)
	}
}

func (p *NaClProvider) Hash(fn HashFunc, data []byte) []byte {
	operationsCounter.Inc()

	switch fn {
	case HashMD5:
		sum := md5.Sum(data)
		return sum[:]
	case HashSHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	case HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *NaClProvider) deriveKey(password, salt []byte) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], argon2.IDKey(password, salt, p.kdf.Time, p.kdf.Memory, p.kdf.Threads, keySize))
	return &key
}

func (p *NaClProvider) fail(err error, msg string) error {
	failuresCounter.Inc()
	Logger.Errorf("%s: %v", msg, err)
	return errs.Wrap(errs.ErrCrypto, err, msg)
}

func x25519Public(priv *[x25519KeySize]byte) (*[x25519KeySize]byte, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCrypto, err, "derive x25519 public key")
	}
	var out [x25519KeySize]byte
	copy(out[:], pub)
	return &out, nil
}
