package ca

import (
	"context"
	"time"

	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("ca")

const (
	// IdentityKey is the key of the identity in the data returned by Parse
	IdentityKey = "v__IdentityKey"
	// PublicKeyKey is the key of the encoded public key in the data returned by Parse
	PublicKeyKey = "v__PublicKeyKey"
)

// CRL is a snapshot of the revocation list of an authority
type CRL struct {
	// CardIDs lists the card ids of all revoked certificates
	CardIDs    []string
	ThisUpdate time.Time
	NextUpdate time.Time
}

// Client is the certificate authority the backend issues and checks device
// certificates with. Certificates are PEM encoded.
type Client interface {
	// Create generates a key pair for identity and issues a certificate
	// carrying customData. It returns the encoded private key and the
	// certificate.
	Create(ctx context.Context, identity string, curve crypto.Curve, customData map[string][]byte) (privateKey, certificate []byte, err error)
	// Get returns the certificate issued for identity, or the root
	// certificate for identifier.RootID
	Get(ctx context.Context, identity string) ([]byte, error)
	// Root returns the root certificate
	Root(ctx context.Context) ([]byte, error)
	// Verify reports whether certificate was issued by root and is currently valid
	Verify(ctx context.Context, certificate, root []byte) (bool, error)
	// Parse extracts the custom data, the identity and the public key of a certificate
	Parse(certificate []byte) (map[string][]byte, error)
	// Revoke revokes the certificate of identity. privateKey must be the key
	// the certificate was issued for.
	Revoke(ctx context.Context, identity string, privateKey []byte) error
	// CRL returns the current revocation list
	CRL(ctx context.Context) (CRL, error)
}
