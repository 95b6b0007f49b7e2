package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Protocol Constants
// --------------------------------------------------------------------------

const (
	// InvalidRequestID is never assigned to a real request
	InvalidRequestID uint32 = 0

	// HeaderSize is the size of the frame header (requestId u32, commandType u16, fieldCount u16)
	HeaderSize = 4 + 2 + 2

	// FieldHeaderSize is the size of one field header (fieldType u16, dataLength u32, reserved u64)
	FieldHeaderSize = 2 + 4 + 8

	// MaxFieldCount is the maximum number of fields a single frame may carry
	MaxFieldCount = 50
)

// --------------------------------------------------------------------------
// Command Type Definition
// --------------------------------------------------------------------------

// CommandType identifies the operation a frame requests or answers.
type CommandType uint16

const (
	CmdTInvalid CommandType = iota // 0: reserved, never valid on the wire

	// Control

	CmdTPing // Liveness probe, carries no fields

	// Crypto operations

	CmdTKeygen          // Generate a key pair
	CmdTEncryptPassword // Encrypt data with a password
	CmdTDecryptPassword // Decrypt data with a password
	CmdTEncrypt         // Encrypt data for a list of recipients
	CmdTDecrypt         // Decrypt data with a private key
	CmdTSign            // Sign data with a private key
	CmdTVerify          // Verify a signature
	CmdTHash            // Hash data

	// Storage operations

	CmdTStorageStore  // Save key material
	CmdTStorageLoad   // Load key material
	CmdTStorageRemove // Remove key material

	// Certificate operations

	CmdTCertCreate     // Create a certificate and private key
	CmdTCertGet        // Fetch a certificate by identity
	CmdTCertVerify     // Verify a certificate against a root certificate
	CmdTCertParse      // Extract the key-value content of a certificate
	CmdTCertRevoke     // Revoke a certificate
	CmdTCRLInfo        // Last and next CRL refresh time
	CmdTCheckIsRevoked // Check a certificate against the CRL

	CmdTMax // upper bound, never valid on the wire
)

// Valid reports whether the command type may appear on the wire.
func (t CommandType) Valid() bool {
	return t > CmdTInvalid && t < CmdTMax
}

var commandTypeNames = map[CommandType]string{
	CmdTInvalid:         "invalid",
	CmdTPing:            "ping",
	CmdTKeygen:          "keygen",
	CmdTEncryptPassword: "encryptPassword",
	CmdTDecryptPassword: "decryptPassword",
	CmdTEncrypt:         "encrypt",
	CmdTDecrypt:         "decrypt",
	CmdTSign:            "sign",
	CmdTVerify:          "verify",
	CmdTHash:            "hash",
	CmdTStorageStore:    "storageStore",
	CmdTStorageLoad:     "storageLoad",
	CmdTStorageRemove:   "storageRemove",
	CmdTCertCreate:      "certCreate",
	CmdTCertGet:         "certGet",
	CmdTCertVerify:      "certVerify",
	CmdTCertParse:       "certParse",
	CmdTCertRevoke:      "certRevoke",
	CmdTCRLInfo:         "crlInfo",
	CmdTCheckIsRevoked:  "checkIsRevoked",
}

// String returns the string representation of a CommandType.
func (t CommandType) String() string {
	if name, ok := commandTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// MarshalJSON implements the json.Marshaller interface for CommandType.
func (t CommandType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CommandType.
func (t *CommandType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range commandTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown command type: %s", s)
}

// --------------------------------------------------------------------------
// Field Type Definition
// --------------------------------------------------------------------------

// FieldType identifies the meaning of a field payload.
type FieldType uint16

const (
	FieldTInvalid FieldType = iota // 0: reserved, never valid on the wire

	FieldTToken           // Opaque access token
	FieldTCurveType       // Key algorithm, one byte
	FieldTPassword        // Pass-phrase
	FieldTPrivateKey      // Private key material
	FieldTPublicKey       // Public key material
	FieldTKeyType         // Store type for storage commands (u16)
	FieldTIdentity        // Storage id or certificate identity
	FieldTData            // Generic payload
	FieldTSignature       // Signature bytes
	FieldTResult          // Result code (u16)
	FieldTCertificate     // Certificate
	FieldTRootCertificate // Root certificate
	FieldTCRLLast         // Last CRL refresh (unix seconds, i64)
	FieldTCRLNext         // Next CRL refresh (unix seconds, i64)
	FieldTHashFunc        // Hash function id, one byte
	FieldTOptional1       // Command specific extra value

	FieldTMax // upper bound, never valid on the wire
)

// Valid reports whether the field type may appear on the wire.
func (t FieldType) Valid() bool {
	return t > FieldTInvalid && t < FieldTMax
}

var fieldTypeNames = map[FieldType]string{
	FieldTInvalid:         "invalid",
	FieldTToken:           "token",
	FieldTCurveType:       "curveType",
	FieldTPassword:        "password",
	FieldTPrivateKey:      "privateKey",
	FieldTPublicKey:       "publicKey",
	FieldTKeyType:         "keyType",
	FieldTIdentity:        "identity",
	FieldTData:            "data",
	FieldTSignature:       "signature",
	FieldTResult:          "result",
	FieldTCertificate:     "certificate",
	FieldTRootCertificate: "rootCertificate",
	FieldTCRLLast:         "crlLast",
	FieldTCRLNext:         "crlNext",
	FieldTHashFunc:        "hashFunc",
	FieldTOptional1:       "optional1",
}

// String returns the string representation of a FieldType.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// MarshalJSON implements the json.Marshaller interface for FieldType.
func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for FieldType.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range fieldTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown field type: %s", s)
}

// --------------------------------------------------------------------------
// Result Codes
// --------------------------------------------------------------------------

// ResultCode is the payload of a FieldTResult field.
type ResultCode uint16

const (
	ResultOk           ResultCode = 0 // Operation succeeded
	ResultGeneralError ResultCode = 1 // Operation failed
)

func (r ResultCode) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultGeneralError:
		return "general error"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(r))
	}
}
