package ca

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/identifier"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	issuedCounter  = metrics.NewCounter(`kbridge_ca_certificates_issued_total`)
	revokedCounter = metrics.NewCounter(`kbridge_ca_certificates_revoked_total`)
)

// customDataOID is the certificate extension holding the packed custom data
var customDataOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 59999, 1, 1}

// Config configures a LocalCA
type Config struct {
	// Name is the common name of the root certificate
	Name string
	// Validity is the lifetime of issued certificates
	Validity time.Duration
	// CRLValidity is the distance between ThisUpdate and NextUpdate of a CRL
	CRLValidity time.Duration
	// KeyPath keeps the root key across restarts, empty generates a new one
	KeyPath string
}

// issued is a certificate in the registry of a LocalCA
type issued struct {
	cardID    string
	pem       []byte
	publicKey []byte // encoded, see crypto.EncodePublicKey
}

// LocalCA is a self-contained certificate authority with an ECDSA P-256
// root. It keeps the certificates it issued and the revocations in memory.
type LocalCA struct {
	config   Config
	provider crypto.Provider

	rootKey  *ecdsa.PrivateKey
	rootCert *x509.Certificate
	rootPEM  []byte

	certificates *xsync.MapOf[string, issued]    // identity -> certificate
	revoked      *xsync.MapOf[string, time.Time] // card id -> revocation time
}

// NewLocalCA creates the root certificate, loading or storing the root key
// at config.KeyPath if one is given.
func NewLocalCA(config Config, provider crypto.Provider) (*LocalCA, error) {
	if config.Name == "" {
		config.Name = "kBridge Root CA"
	}
	if config.Validity <= 0 {
		config.Validity = 365 * 24 * time.Hour
	}
	if config.CRLValidity <= 0 {
		config.CRLValidity = time.Hour
	}

	rootKey, err := loadOrCreateRootKey(config.KeyPath)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serialFor(uuid.New()),
		Subject:               pkix.Name{CommonName: config.Name},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(10 * config.Validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCA, err, "create root certificate")
	}
	rootCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCA, err, "parse root certificate")
	}

	Logger.Infof("root certificate %q ready (valid until %s)", config.Name, rootCert.NotAfter.Format(time.RFC3339))

	return &LocalCA{
		config:       config,
		provider:     provider,
		rootKey:      rootKey,
		rootCert:     rootCert,
		rootPEM:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		certificates: xsync.NewMapOf[string, issued](),
		revoked:      xsync.NewMapOf[string, time.Time](),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ca.Client)
// --------------------------------------------------------------------------

func (c *LocalCA) Create(_ context.Context, identity string, curve crypto.Curve, customData map[string][]byte) ([]byte, []byte, error) {
	if identity == "" || identity == identifier.RootID {
		return nil, nil, errs.Validationf("invalid certificate identity %q", identity)
	}
	if curve != crypto.CurveEd25519 && curve != crypto.CurveP256 {
		return nil, nil, errs.Validationf("certificates need a signing curve, got %s", curve)
	}

	privateKey, publicKey, err := c.provider.Keygen(curve)
	if err != nil {
		return nil, nil, err
	}
	signer, err := crypto.DecodeSigner(privateKey)
	if err != nil {
		return nil, nil, err
	}

	cardID := uuid.New()
	template := &x509.Certificate{
		SerialNumber: serialFor(cardID),
		Subject:      pkix.Name{CommonName: identity},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(c.config.Validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if len(customData) > 0 {
		packed, err := PackKeyValues(customData)
		if err != nil {
			return nil, nil, err
		}
		template.ExtraExtensions = []pkix.Extension{{Id: customDataOID, Value: packed}}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, c.rootCert, signer.Public(), c.rootKey)
	if err != nil {
		return nil, nil, errs.Wrapf(errs.ErrCA, err, "issue certificate for %q", identity)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	if _, replaced := c.certificates.Load(identity); replaced {
		Logger.Warningf("replacing the certificate of %q", identity)
	}
	c.certificates.Store(identity, issued{cardID: cardID.String(), pem: certPEM, publicKey: publicKey})
	issuedCounter.Inc()
	Logger.Infof("issued %s certificate %s for %q", curve, cardID, identity)

	return privateKey, certPEM, nil
}

func (c *LocalCA) Get(ctx context.Context, identity string) ([]byte, error) {
	if identity == identifier.RootID {
		return c.Root(ctx)
	}
	cert, ok := c.certificates.Load(identity)
	if !ok {
		return nil, errs.NotFoundf("no certificate for %q", identity)
	}
	return cert.pem, nil
}

func (c *LocalCA) Root(context.Context) ([]byte, error) {
	return c.rootPEM, nil
}

func (c *LocalCA) Verify(_ context.Context, certificate, root []byte) (bool, error) {
	cert, err := crypto.ParseCertificate(certificate)
	if err != nil {
		return false, err
	}
	rootCert, err := crypto.ParseCertificate(root)
	if err != nil {
		return false, err
	}

	roots := x509.NewCertPool()
	roots.AddCert(rootCert)
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		Logger.Debugf("certificate %q does not verify: %v", cert.Subject.CommonName, err)
		return false, nil
	}
	return true, nil
}

func (c *LocalCA) Parse(certificate []byte) (map[string][]byte, error) {
	cert, err := crypto.ParseCertificate(certificate)
	if err != nil {
		return nil, err
	}

	data := map[string][]byte{}
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(customDataOID) {
			if data, err = ParseKeyValues(ext.Value); err != nil {
				return nil, errs.Wrap(errs.ErrCA, err, "parse custom data")
			}
			break
		}
	}

	publicKey, err := crypto.EncodePublicKey(cert.PublicKey)
	if err != nil {
		return nil, err
	}
	data[IdentityKey] = []byte(cert.Subject.CommonName)
	data[PublicKeyKey] = publicKey
	return data, nil
}

func (c *LocalCA) Revoke(_ context.Context, identity string, privateKey []byte) error {
	cert, ok := c.certificates.Load(identity)
	if !ok {
		return errs.NotFoundf("no certificate for %q", identity)
	}

	publicKey, err := crypto.PublicKeyOf(privateKey)
	if err != nil {
		return err
	}
	if !bytes.Equal(publicKey, cert.publicKey) {
		return errs.CAf("private key does not belong to the certificate of %q", identity)
	}

	if _, already := c.revoked.LoadOrStore(cert.cardID, time.Now()); !already {
		revokedCounter.Inc()
		Logger.Infof("revoked certificate %s of %q", cert.cardID, identity)
	}
	return nil
}

func (c *LocalCA) CRL(context.Context) (CRL, error) {
	now := time.Now()
	crl := CRL{ThisUpdate: now, NextUpdate: now.Add(c.config.CRLValidity)}
	c.revoked.Range(func(cardID string, _ time.Time) bool {
		crl.CardIDs = append(crl.CardIDs, cardID)
		return true
	})
	sort.Strings(crl.CardIDs)
	return crl, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// CardID returns the card id of a certificate issued by a LocalCA
func CardID(certificate []byte) (string, error) {
	cert, err := crypto.ParseCertificate(certificate)
	if err != nil {
		return "", err
	}
	if cert.SerialNumber.Sign() <= 0 || cert.SerialNumber.BitLen() > 128 {
		return "", errs.Validationf("certificate serial is not a card id")
	}
	id, err := uuid.FromBytes(cert.SerialNumber.FillBytes(make([]byte, 16)))
	if err != nil {
		return "", errs.Wrap(errs.ErrValidation, err, "card id")
	}
	return id.String(), nil
}

func serialFor(id uuid.UUID) *big.Int {
	return new(big.Int).SetBytes(id[:])
}

func loadOrCreateRootKey(path string) (*ecdsa.PrivateKey, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			block, _ := pem.Decode(raw)
			if block == nil {
				return nil, errs.CAf("root key %s is not PEM encoded", path)
			}
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, errs.Wrapf(errs.ErrCA, err, "parse root key %s", path)
			}
			Logger.Infof("loaded root key from %s", path)
			return key, nil
		}
		if !os.IsNotExist(err) {
			return nil, errs.Wrapf(errs.ErrCA, err, "read root key %s", path)
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCA, err, "generate root key")
	}

	if path != "" {
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCA, err, "marshal root key")
		}
		if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600); err != nil {
			return nil, errs.Wrapf(errs.ErrCA, err, "write root key %s", path)
		}
		Logger.Infof("stored new root key at %s", path)
	}
	return key, nil
}
