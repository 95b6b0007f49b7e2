package server

import (
	"context"

	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// DefaultCurve is used by Keygen requests without a curve field
const DefaultCurve = crypto.CurveP256

// NewCryptoProcessor creates the processor for the crypto commands.
func NewCryptoProcessor(provider crypto.Provider) IProcessor {
	return &cryptoProcessor{provider: provider}
}

type cryptoProcessor struct {
	provider crypto.Provider
}

func (p *cryptoProcessor) Commands() []common.CommandType {
	return []common.CommandType{
		common.CmdTKeygen,
		common.CmdTEncryptPassword,
		common.CmdTDecryptPassword,
		common.CmdTEncrypt,
		common.CmdTDecrypt,
		common.CmdTSign,
		common.CmdTVerify,
		common.CmdTHash,
	}
}

func (p *cryptoProcessor) Handle(_ context.Context, req *codec.Command) (*codec.Command, error) {
	switch req.Type {
	case common.CmdTKeygen:
		return p.keygen(req)
	case common.CmdTEncryptPassword:
		return p.password(req, p.provider.EncryptPassword)
	case common.CmdTDecryptPassword:
		return p.password(req, p.provider.DecryptPassword)
	case common.CmdTEncrypt:
		return p.encrypt(req)
	case common.CmdTDecrypt:
		return p.decrypt(req)
	case common.CmdTSign:
		return p.sign(req)
	case common.CmdTVerify:
		return p.verify(req)
	case common.CmdTHash:
		return p.hash(req)
	default:
		return nil, errs.Validationf("crypto processor cannot handle %s", req.Type)
	}
}

func (p *cryptoProcessor) keygen(req *codec.Command) (*codec.Command, error) {
	curve := DefaultCurve
	if raw, ok, err := optional(req, common.FieldTCurveType); err != nil {
		return nil, err
	} else if ok && len(raw) > 0 {
		curve = crypto.Curve(raw[0])
	}

	priv, pub, err := p.provider.Keygen(curve)
	if err != nil {
		return nil, err
	}
	return reply(req).
		Append(common.FieldTPrivateKey, priv).
		Append(common.FieldTPublicKey, pub), nil
}

// password handles both directions of the pass-phrase encryption
func (p *cryptoProcessor) password(req *codec.Command, fn func(password, data []byte) ([]byte, error)) (*codec.Command, error) {
	password, err := single(req, common.FieldTPassword)
	if err != nil {
		return nil, err
	}
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	out, err := fn(password, data)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTData, out), nil
}

// encrypt addresses the recipients either by certificate or by public key
// and identity pairs, the i-th public key belongs to the i-th identity
func (p *cryptoProcessor) encrypt(req *codec.Command) (*codec.Command, error) {
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}

	certificates := req.All(common.FieldTCertificate)
	publicKeys := req.All(common.FieldTPublicKey)
	identities := req.All(common.FieldTIdentity)

	var recipients []crypto.Recipient
	switch {
	case len(certificates) > 0 && len(publicKeys) == 0:
		for _, raw := range certificates {
			cert, err := crypto.ParseCertificate(raw)
			if err != nil {
				return nil, err
			}
			pub, err := crypto.EncodePublicKey(cert.PublicKey)
			if err != nil {
				return nil, err
			}
			recipients = append(recipients, crypto.Recipient{Identity: cert.Subject.CommonName, PublicKey: pub})
		}

	case len(publicKeys) > 0 && len(certificates) == 0:
		if len(publicKeys) != len(identities) {
			return nil, errs.Validationf("%s: %d public keys but %d identities", req.Type, len(publicKeys), len(identities))
		}
		for i := range publicKeys {
			recipients = append(recipients, crypto.Recipient{Identity: identityOf(identities[i]), PublicKey: publicKeys[i]})
		}

	default:
		return nil, errs.Validationf("%s: recipients must be given either as certificates or as public keys", req.Type)
	}

	out, err := p.provider.Encrypt(data, recipients)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTData, out), nil
}

func (p *cryptoProcessor) decrypt(req *codec.Command) (*codec.Command, error) {
	priv, err := single(req, common.FieldTPrivateKey)
	if err != nil {
		return nil, err
	}
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	identity, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	out, err := p.provider.Decrypt(identity, priv, data)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTData, out), nil
}

func (p *cryptoProcessor) sign(req *codec.Command) (*codec.Command, error) {
	priv, err := single(req, common.FieldTPrivateKey)
	if err != nil {
		return nil, err
	}
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	signature, err := p.provider.Sign(priv, data)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTSignature, signature), nil
}

// verify takes the signer's key from a certificate or a public key field.
// A signature that does not match is answered with a GeneralError result,
// not with an error.
func (p *cryptoProcessor) verify(req *codec.Command) (*codec.Command, error) {
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	signature, err := single(req, common.FieldTSignature)
	if err != nil {
		return nil, err
	}

	var pub []byte
	switch {
	case req.Count(common.FieldTCertificate) == 1 && req.Count(common.FieldTPublicKey) == 0:
		raw, _ := req.First(common.FieldTCertificate)
		if pub, err = crypto.PublicKeyFromCertificate(raw); err != nil {
			return nil, err
		}
	case req.Count(common.FieldTPublicKey) == 1 && req.Count(common.FieldTCertificate) == 0:
		pub, _ = req.First(common.FieldTPublicKey)
	default:
		return nil, errs.Validationf("%s: expected exactly one certificate or public key", req.Type)
	}

	ok, err := p.provider.Verify(pub, data, signature)
	if err != nil {
		return nil, err
	}
	return result(req, ok), nil
}

// hash defaults to sha256 without a hash function field
func (p *cryptoProcessor) hash(req *codec.Command) (*codec.Command, error) {
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	fn := crypto.HashDefault
	if raw, ok, err := optional(req, common.FieldTHashFunc); err != nil {
		return nil, err
	} else if ok && len(raw) > 0 {
		fn = crypto.HashFunc(raw[0])
	}
	return reply(req).Append(common.FieldTData, p.provider.Hash(fn, data)), nil
}
