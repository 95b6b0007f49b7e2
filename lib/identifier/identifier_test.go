package identifier

import (
	"testing"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/store/permanent"
	"github.com/ValentinKolb/kBridge/lib/store/temporary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestKey(t *testing.T) {
	tests := []struct {
		role   Role
		handle uint64
		want   string
	}{
		{RolePrivate, 0, "PRIV_0"},
		{RoleCertificate, 0, "CERT_0"},
		{RolePrivate, 1, "PRIV_1000000000000000"},
		{RolePublic, 0x1F, "PUBL_F100000000000000"},
		{RoleCertificate, 0xABCDEF, "CERT_FEDCBA0000000000"},
		{RoleSymmetric, ^uint64(0), "SYMM_FFFFFFFFFFFFFFFF"},
		{RolePrivate, 0x0123456789ABCDEF, "PRIV_FEDCBA9876543210"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := Key(tt.role, tt.handle)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, store.ValidateID(got), "ids must fit the store")
		})
	}
}

func TestKeyInvalidRole(t *testing.T) {
	_, err := Key(Role(9), 1)
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestParseRejects(t *testing.T) {
	for _, id := range []string{"", "PRIV_", "XXXX_1000000000000000", "PRIV_G000000000000000", "PRIV_0000000000000000", "0", "CERT_00", "PRIV_10000000000000000"} {
		_, _, err := Parse(id)
		assert.True(t, errs.Is(err, errs.ErrValidation), id)
	}
}

func TestRootKeysKeepRole(t *testing.T) {
	seen := make(map[string]Role)
	for _, role := range []Role{RolePrivate, RolePublic, RoleCertificate, RoleSymmetric} {
		id := MustKey(role, 0)
		other, dup := seen[id]
		require.False(t, dup, "%s and %s share root id %q", role, other, id)
		seen[id] = role

		parsed, handle, err := Parse(id)
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
		assert.Zero(t, handle)
	}
}

func TestRootKeysDoNotOverwriteEachOther(t *testing.T) {
	v := store.NewVault(permanent.NewMemoryStore(4), temporary.NewStore(4), nil)
	require.NoError(t, v.Save(store.StoreTypePermanent, MustKey(RolePrivate, 0), []byte("root-private"), nil))
	require.NoError(t, v.Save(store.StoreTypePermanent, MustKey(RoleCertificate, 0), []byte("root-cert"), nil))

	got, err := v.Load(MustKey(RolePrivate, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("root-private"), got)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("cert")
	require.NoError(t, err)
	assert.Equal(t, RoleCertificate, r)
	_, err = ParseRole("nope")
	assert.Error(t, err)
}

// TestInjectiveProperty checks that distinct (role, handle) pairs never share an id
func TestInjectiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roleA := Role(rapid.IntRange(0, 3).Draw(t, "roleA"))
		roleB := Role(rapid.IntRange(0, 3).Draw(t, "roleB"))
		a := rapid.OneOf(rapid.Just(uint64(0)), rapid.Uint64()).Draw(t, "a")
		b := rapid.OneOf(rapid.Just(uint64(0)), rapid.Uint64()).Draw(t, "b")

		keyA := MustKey(roleA, a)
		keyB := MustKey(roleB, b)
		if roleA != roleB || a != b {
			require.NotEqual(t, keyA, keyB)
		}

		role, handle, err := Parse(keyA)
		require.NoError(t, err)
		require.Equal(t, roleA, role)
		require.Equal(t, a, handle)
	})
}
