package crypto

import (
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// An envelope seals the payload once with a random content key and wraps
// that key for every recipient (all integers little endian):
//
//	u16 count
//	count x {u16 idLen, id, u16 wrapLen, wrapped content key}
//	nonce [24]byte, secretbox(payload)
//
// x25519 recipients get the content key as an anonymous nacl box. p256
// recipients get it in a secretbox keyed with sha256(ECDH(ephemeral,
// recipient) | ephemeral public key), the wrap starts with the uncompressed
// ephemeral public key and the nonce.

const p256PointSize = 65

func sealEnvelope(random io.Reader, data []byte, recipients []Recipient) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errs.Validationf("no recipients")
	}
	if len(recipients) > math.MaxUint16 {
		return nil, errs.Validationf("too many recipients: %d", len(recipients))
	}

	var contentKey [keySize]byte
	if _, err := io.ReadFull(random, contentKey[:]); err != nil {
		return nil, errs.Wrap(errs.ErrCrypto, err, "read content key")
	}

	out := binary.LittleEndian.AppendUint16(nil, uint16(len(recipients)))
	seen := make(map[string]struct{}, len(recipients))

	for _, r := range recipients {
		if len(r.Identity) == 0 || len(r.Identity) > math.MaxUint16 {
			return nil, errs.Validationf("invalid recipient identity of %d bytes", len(r.Identity))
		}
		if _, dup := seen[r.Identity]; dup {
			return nil, errs.Validationf("duplicate recipient %q", r.Identity)
		}
		seen[r.Identity] = struct{}{}

		pub, err := decodePublicKey(r.PublicKey)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrValidation, err, "recipient %q", r.Identity)
		}
		wrapped, err := wrapKey(random, pub, &contentKey)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrCrypto, err, "recipient %q", r.Identity)
		}

		out = binary.LittleEndian.AppendUint16(out, uint16(len(r.Identity)))
		out = append(out, r.Identity...)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(wrapped)))
		out = append(out, wrapped...)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return nil, errs.Wrap(errs.ErrCrypto, err, "read nonce")
	}
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, data, &nonce, &contentKey), nil
}

func openEnvelope(identity string, key *privateKey, data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errs.Cryptof("envelope too short")
	}
	count := int(binary.LittleEndian.Uint16(data))
	pos := 2

	var wrapped []byte
	for i := 0; i < count; i++ {
		id, next, err := readChunk(data, pos)
		if err != nil {
			return nil, err
		}
		wrap, next, err := readChunk(data, next)
		if err != nil {
			return nil, err
		}
		pos = next
		if string(id) == identity {
			wrapped = wrap
		}
	}
	if wrapped == nil {
		return nil, errs.Cryptof("envelope has no entry for %q", identity)
	}

	contentKey, err := unwrapKey(key, wrapped)
	if err != nil {
		return nil, err
	}

	if len(data)-pos < nonceSize+secretbox.Overhead {
		return nil, errs.Cryptof("envelope body too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[pos:pos+nonceSize])

	plain, ok := secretbox.Open(nil, data[pos+nonceSize:], &nonce, contentKey)
	if !ok {
		return nil, errs.Cryptof("envelope body failed authentication")
	}
	return plain, nil
}

// readChunk reads a u16 length prefixed chunk at pos
func readChunk(data []byte, pos int) ([]byte, int, error) {
	if len(data)-pos < 2 {
		return nil, 0, errs.Cryptof("envelope truncated at offset %d", pos)
	}
	n := int(binary.LittleEndian.Uint16(data[pos:]))
	pos += 2
	if len(data)-pos < n {
		return nil, 0, errs.Cryptof("envelope truncated at offset %d", pos)
	}
	return data[pos : pos+n], pos + n, nil
}

func wrapKey(random io.Reader, pub *publicKey, contentKey *[keySize]byte) ([]byte, error) {
	switch pub.curve {
	case CurveX25519:
		wrapped, err := box.SealAnonymous(nil, contentKey[:], pub.x25519, random)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "seal content key")
		}
		return wrapped, nil

	case CurveP256:
		recipient, err := pub.ecdsa.ECDH()
		if err != nil {
			return nil, errs.Wrap(errs.ErrValidation, err, "convert p256 key")
		}
		ephemeral, err := ecdh.P256().GenerateKey(random)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "generate ephemeral key")
		}
		shared, err := ephemeral.ECDH(recipient)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "ecdh")
		}
		point := ephemeral.PublicKey().Bytes()
		kek := keyEncryptionKey(shared, point)

		var nonce [nonceSize]byte
		if _, err := io.ReadFull(random, nonce[:]); err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "read nonce")
		}
		out := append(append([]byte{}, point...), nonce[:]...)
		return secretbox.Seal(out, contentKey[:], &nonce, kek), nil

	default:
		return nil, errs.Validationf("%s keys cannot receive encrypted data", pub.curve)
	}
}

func unwrapKey(key *privateKey, wrapped []byte) (*[keySize]byte, error) {
	var plain []byte

	switch key.curve {
	case CurveX25519:
		pub, err := x25519Public(key.x25519)
		if err != nil {
			return nil, err
		}
		var ok bool
		plain, ok = box.OpenAnonymous(nil, wrapped, pub, key.x25519)
		if !ok {
			return nil, errs.Cryptof("content key does not open with this private key")
		}

	case CurveP256:
		if len(wrapped) < p256PointSize+nonceSize+secretbox.Overhead {
			return nil, errs.Cryptof("wrapped content key too short")
		}
		priv, err := key.ecdsa.ECDH()
		if err != nil {
			return nil, errs.Wrap(errs.ErrValidation, err, "convert p256 key")
		}
		point := wrapped[:p256PointSize]
		ephemeral, err := ecdh.P256().NewPublicKey(point)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "parse ephemeral key")
		}
		shared, err := priv.ECDH(ephemeral)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCrypto, err, "ecdh")
		}

		var nonce [nonceSize]byte
		copy(nonce[:], wrapped[p256PointSize:])
		var ok bool
		plain, ok = secretbox.Open(nil, wrapped[p256PointSize+nonceSize:], &nonce, keyEncryptionKey(shared, point))
		if !ok {
			return nil, errs.Cryptof("content key does not open with this private key")
		}

	default:
		return nil, errs.Validationf("%s keys cannot decrypt", key.curve)
	}

	if len(plain) != keySize {
		return nil, errs.Cryptof("content key has %d bytes", len(plain))
	}
	var contentKey [keySize]byte
	copy(contentKey[:], plain)
	return &contentKey, nil
}

func keyEncryptionKey(shared, point []byte) *[keySize]byte {
	h := sha256.New()
	h.Write(shared)
	h.Write(point)
	var kek [keySize]byte
	copy(kek[:], h.Sum(nil))
	return &kek
}
