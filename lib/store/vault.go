package store

import (
	"github.com/ValentinKolb/kBridge/lib/errs"
)

// Vault combines the permanent and the temporary table behind one API and
// applies the optional pass-phrase encryption. A failed decryption only
// affects the call that requested it, stored payloads are never modified
// by Load.
type Vault struct {
	permanent IKeyStore
	temporary IKeyStore
	cipher    Cipher
}

// NewVault creates a vault. cipher may be nil, in which case pass-phrases
// are rejected.
func NewVault(permanent, temporary IKeyStore, cipher Cipher) *Vault {
	return &Vault{
		permanent: permanent,
		temporary: temporary,
		cipher:    cipher,
	}
}

// Table returns the table selected by t.
func (v *Vault) Table(t StoreType) (IKeyStore, error) {
	switch t {
	case StoreTypePermanent:
		return v.permanent, nil
	case StoreTypeTemporary:
		return v.temporary, nil
	default:
		return nil, errs.Validationf("invalid store type %d", uint16(t))
	}
}

// Save stores data in the selected table. With a non-empty password the
// ciphertext is stored instead of data; the size limit applies to the
// stored bytes.
func (v *Vault) Save(t StoreType, id string, data, password []byte) error {
	table, err := v.Table(t)
	if err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}

	payload := data
	if len(password) > 0 {
		if v.cipher == nil {
			return errs.Cryptof("no cipher configured for pass-phrase encryption")
		}
		payload, err = v.cipher.EncryptPassword(password, data)
		if err != nil {
			return errs.Wrapf(errs.ErrCrypto, err, "encrypt %q", id)
		}
	}

	if err := table.Save(id, payload); err != nil {
		return err
	}
	Logger.Debugf("vault: saved %q in %s table (encrypted=%t)", id, t, len(password) > 0)
	return nil
}

// Load looks id up in the temporary table first and in the permanent table
// second.
func (v *Vault) Load(id string, password []byte) ([]byte, error) {
	data, err := v.temporary.Load(id)
	if errs.Is(err, errs.ErrNotFound) {
		data, err = v.permanent.Load(id)
	}
	if err != nil {
		return nil, err
	}
	return v.decrypt(id, data, password)
}

// LoadFrom looks id up in the selected table only.
func (v *Vault) LoadFrom(t StoreType, id string, password []byte) ([]byte, error) {
	table, err := v.Table(t)
	if err != nil {
		return nil, err
	}
	data, err := table.Load(id)
	if err != nil {
		return nil, err
	}
	return v.decrypt(id, data, password)
}

// Remove deletes id from both tables and reports whether anything was removed.
func (v *Vault) Remove(id string) bool {
	removedTemp := v.temporary.Remove(id)
	removedPerm := v.permanent.Remove(id)
	return removedTemp || removedPerm
}

func (v *Vault) decrypt(id string, data, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return data, nil
	}
	if v.cipher == nil {
		return nil, errs.Cryptof("no cipher configured for pass-phrase decryption")
	}
	plain, err := v.cipher.DecryptPassword(password, data)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrCrypto, err, "decrypt %q", id)
	}
	return plain, nil
}
