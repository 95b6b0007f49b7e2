package store_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/store/permanent"
	"github.com/ValentinKolb/kBridge/lib/store/temporary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xorCipher prefixes the password so a wrong password is detected
type xorCipher struct{}

func (xorCipher) EncryptPassword(password, data []byte) ([]byte, error) {
	out := append([]byte(nil), password...)
	for i, b := range data {
		out = append(out, b^password[i%len(password)])
	}
	return out, nil
}

func (xorCipher) DecryptPassword(password, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, password) {
		return nil, errors.New("wrong password")
	}
	data = data[len(password):]
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ password[i%len(password)]
	}
	return out, nil
}

func newVault() *store.Vault {
	return store.NewVault(permanent.NewMemoryStore(3), temporary.NewStore(3), xorCipher{})
}

func TestVaultTables(t *testing.T) {
	v := newVault()

	require.NoError(t, v.Save(store.StoreTypePermanent, "p", []byte("perm"), nil))
	require.NoError(t, v.Save(store.StoreTypeTemporary, "t", []byte("temp"), nil))

	got, err := v.Load("p", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("perm"), got)

	got, err = v.Load("t", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("temp"), got)

	_, err = v.LoadFrom(store.StoreTypeTemporary, "p", nil)
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	err = v.Save(store.StoreTypeUnknown, "x", nil, nil)
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestVaultTemporaryShadowsPermanent(t *testing.T) {
	v := newVault()
	require.NoError(t, v.Save(store.StoreTypePermanent, "k", []byte("perm"), nil))
	require.NoError(t, v.Save(store.StoreTypeTemporary, "k", []byte("temp"), nil))

	got, err := v.Load("k", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("temp"), got)

	assert.True(t, v.Remove("k"))
	_, err = v.Load("k", nil)
	assert.True(t, errs.Is(err, errs.ErrNotFound), "remove clears both tables")
	assert.False(t, v.Remove("k"))
}

func TestVaultPassword(t *testing.T) {
	v := newVault()
	pass := []byte("hunter2")

	require.NoError(t, v.Save(store.StoreTypePermanent, "enc", []byte("secret"), pass))
	require.NoError(t, v.Save(store.StoreTypePermanent, "other", []byte("plain"), nil))

	// stored bytes are the ciphertext
	raw, err := v.LoadFrom(store.StoreTypePermanent, "enc", nil)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("secret"), raw)

	got, err := v.Load("enc", pass)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)

	// a wrong password fails only this call
	_, err = v.Load("enc", []byte("wrong"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrCrypto))

	got, err = v.Load("enc", pass)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
	got, err = v.Load("other", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), got)
}

func TestVaultWithoutCipher(t *testing.T) {
	v := store.NewVault(permanent.NewMemoryStore(1), temporary.NewStore(1), nil)
	err := v.Save(store.StoreTypeTemporary, "k", []byte("x"), []byte("pw"))
	assert.True(t, errs.Is(err, errs.ErrCrypto))
	assert.Equal(t, 0, func() int { tab, _ := v.Table(store.StoreTypeTemporary); return tab.Len() }())
}

func TestParseStoreType(t *testing.T) {
	st, err := store.ParseStoreType("permanent")
	require.NoError(t, err)
	assert.Equal(t, store.StoreTypePermanent, st)

	st, err = store.ParseStoreType("temp")
	require.NoError(t, err)
	assert.Equal(t, store.StoreTypeTemporary, st)

	_, err = store.ParseStoreType("disk")
	assert.True(t, errs.Is(err, errs.ErrValidation))
}
