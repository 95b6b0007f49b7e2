// Package identifier derives storage ids for credentials from opaque numeric
// handles.
//
// An id is a five byte role prefix followed by the 64 bit handle rendered as
// 16 upper case hex digits, least significant nibble first:
//
//	Key(RolePrivate, 0x1F) == "PRIV_F100000000000000"
//
// The reserved handle 0 denotes the root credentials and keeps only the role
// prefix in front of RootID ("PRIV_0", "CERT_0", ...). Both renderings keep
// the role, so the mapping is injective over all roles and handles.
package identifier

import (
	"strings"

	"github.com/ValentinKolb/kBridge/lib/errs"
)

// RootID is the identity of the root certificate. Key renders handle 0 as
// the role prefix followed by RootID.
const RootID = "0"

// handleDigits is the number of hex digits of a rendered handle
const handleDigits = 16

// Role tags the kind of credential a handle refers to.
type Role uint8

const (
	RolePrivate     Role = iota // private key
	RolePublic                  // public key
	RoleCertificate             // certificate
	RoleSymmetric               // symmetric key
)

var prefixes = [...]string{
	RolePrivate:     "PRIV_",
	RolePublic:      "PUBL_",
	RoleCertificate: "CERT_",
	RoleSymmetric:   "SYMM_",
}

const hexDigits = "0123456789ABCDEF"

func (r Role) String() string {
	switch r {
	case RolePrivate:
		return "private"
	case RolePublic:
		return "public"
	case RoleCertificate:
		return "certificate"
	case RoleSymmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}

// Prefix returns the fixed width prefix of the role.
func (r Role) Prefix() string {
	if int(r) >= len(prefixes) {
		return ""
	}
	return prefixes[r]
}

// ParseRole converts the CLI representation of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "private", "priv":
		return RolePrivate, nil
	case "public", "publ", "pub":
		return RolePublic, nil
	case "certificate", "cert":
		return RoleCertificate, nil
	case "symmetric", "symm", "sym":
		return RoleSymmetric, nil
	default:
		return 0, errs.Validationf("invalid role %q (expected private, public, certificate or symmetric)", s)
	}
}

// Key returns the storage id of the credential of the given role and handle.
func Key(role Role, handle uint64) (string, error) {
	prefix := role.Prefix()
	if prefix == "" {
		return "", errs.Validationf("invalid role %d", uint8(role))
	}
	if handle == 0 {
		return prefix + RootID, nil
	}

	var sb strings.Builder
	sb.Grow(len(prefix) + handleDigits)
	sb.WriteString(prefix)
	for i := 0; i < handleDigits; i++ {
		sb.WriteByte(hexDigits[handle&0xF])
		handle >>= 4
	}
	return sb.String(), nil
}

// MustKey is Key for roles known to be valid.
func MustKey(role Role, handle uint64) string {
	id, err := Key(role, handle)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse reverses Key.
func Parse(id string) (role Role, handle uint64, err error) {
	found := false
	for r, p := range prefixes {
		if strings.HasPrefix(id, p) {
			role, found = Role(r), true
			break
		}
	}
	if !found {
		return 0, 0, errs.Validationf("unknown prefix in credential id %q", id)
	}
	if id == role.Prefix()+RootID {
		return role, 0, nil
	}
	if len(id) != len(role.Prefix())+handleDigits {
		return 0, 0, errs.Validationf("invalid credential id %q", id)
	}

	digits := id[len(role.Prefix()):]
	for i := handleDigits - 1; i >= 0; i-- {
		v := strings.IndexByte(hexDigits, digits[i])
		if v < 0 {
			return 0, 0, errs.Validationf("invalid hex digit %q in credential id %q", digits[i], id)
		}
		handle = handle<<4 | uint64(v)
	}
	if handle == 0 {
		return 0, 0, errs.Validationf("credential id %q encodes the reserved handle 0", id)
	}
	return role, handle, nil
}
