// Package crypto implements the cryptographic operations the backend offers
// to its callers: key generation, pass-phrase encryption, multi recipient
// encryption, signatures and digests.
//
// Keys cross the wire as opaque blobs whose first byte names the curve, so
// every operation can tell the algorithm from the key alone. Ed25519 and
// P-256 keys sign; P-256 and X25519 keys receive encrypted data.
//
// Pass-phrase encryption derives a secretbox key with argon2id from the
// pass-phrase and a random salt; the output is salt | nonce | ciphertext.
package crypto
