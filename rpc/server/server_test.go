package server

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/ValentinKolb/kBridge/lib/ca"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/identifier"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/store/permanent"
	"github.com/ValentinKolb/kBridge/lib/store/temporary"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/dispatcher"
	"github.com/ValentinKolb/kBridge/rpc/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires the processors on in-memory tables and a fast KDF
func newTestServer(t *testing.T) *Server {
	t.Helper()

	provider := crypto.NewNaClProvider(crypto.KDFParams{Time: 1, Memory: 64, Threads: 1})
	vault := store.NewVault(permanent.NewMemoryStore(4), temporary.NewStore(4), provider)
	authority, err := ca.NewLocalCA(ca.Config{Name: "test root", Validity: time.Hour, CRLValidity: time.Hour}, provider)
	require.NoError(t, err)
	crl := ca.NewCRLRefresher(authority, time.Hour)

	config := common.DefaultServerConfig()
	config.Link.ProbeIntervalMillis = 50
	config.Link.ProbeMisses = 100

	s, err := New(config,
		NewPingProcessor(),
		NewStorageProcessor(vault),
		NewCryptoProcessor(provider),
		NewCertificateProcessor(authority, crl),
	)
	require.NoError(t, err)
	s.crl = crl
	return s
}

var requestID uint32

func request(cmdType common.CommandType) *codec.Command {
	requestID++
	return codec.NewCommand(cmdType, requestID)
}

// handle answers req and checks the reply header
func handle(t *testing.T, s *Server, req *codec.Command) *codec.Command {
	t.Helper()
	resp := s.Handle(context.Background(), req)
	require.NotNil(t, resp)
	require.Equal(t, req.RequestID, resp.RequestID)
	require.Equal(t, req.Type, resp.Type)
	return resp
}

func resultOf(t *testing.T, resp *codec.Command) common.ResultCode {
	t.Helper()
	code, ok := resp.Result()
	require.True(t, ok, "expected a result field in %s", resp)
	return code
}

func first(t *testing.T, resp *codec.Command, ft common.FieldType) []byte {
	t.Helper()
	data, ok := resp.First(ft)
	require.True(t, ok, "expected a %s field in %s", ft, resp)
	return data
}

// --------------------------------------------------------------------------
// Registration and routing
// --------------------------------------------------------------------------

func TestRegisterRejectsDuplicates(t *testing.T) {
	_, err := New(common.DefaultServerConfig(), NewPingProcessor(), NewPingProcessor())
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestHandleWithoutProcessor(t *testing.T) {
	s, err := New(common.DefaultServerConfig())
	require.NoError(t, err)

	resp := handle(t, s, request(common.CmdTHash).AppendString(common.FieldTData, "x"))
	assert.Equal(t, common.ResultGeneralError, resultOf(t, resp))
}

func TestPingEchoesFields(t *testing.T) {
	s := newTestServer(t)
	resp := handle(t, s, request(common.CmdTPing).AppendString(common.FieldTToken, "hello"))
	assert.Equal(t, "hello", string(first(t, resp, common.FieldTToken)))
}

// --------------------------------------------------------------------------
// Storage
// --------------------------------------------------------------------------

func TestStorageCommands(t *testing.T) {
	s := newTestServer(t)

	save := request(common.CmdTStorageStore).
		AppendString(common.FieldTIdentity, "device-key").
		AppendString(common.FieldTData, "secret").
		AppendUint16(common.FieldTKeyType, uint16(store.StoreTypePermanent))
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, save)))

	load := request(common.CmdTStorageLoad).AppendString(common.FieldTIdentity, "device-key")
	assert.Equal(t, "secret", string(first(t, handle(t, s, load), common.FieldTData)))

	// restricted to the temporary table the entry does not exist
	load = request(common.CmdTStorageLoad).
		AppendString(common.FieldTIdentity, "device-key").
		AppendUint16(common.FieldTKeyType, uint16(store.StoreTypeTemporary))
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, load)))

	remove := request(common.CmdTStorageRemove).AppendString(common.FieldTIdentity, "device-key")
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, remove)))

	remove = request(common.CmdTStorageRemove).AppendString(common.FieldTIdentity, "device-key")
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, remove)), "second remove finds nothing")
}

func TestStorageWithPassword(t *testing.T) {
	s := newTestServer(t)

	save := request(common.CmdTStorageStore).
		Append(common.FieldTIdentity, []byte("session\x00")).
		AppendString(common.FieldTData, "payload").
		AppendUint16(common.FieldTKeyType, uint16(store.StoreTypeTemporary)).
		AppendString(common.FieldTPassword, "pw")
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, save)))

	load := request(common.CmdTStorageLoad).
		AppendString(common.FieldTIdentity, "session").
		AppendString(common.FieldTPassword, "pw")
	assert.Equal(t, "payload", string(first(t, handle(t, s, load), common.FieldTData)))

	load = request(common.CmdTStorageLoad).
		AppendString(common.FieldTIdentity, "session").
		AppendString(common.FieldTPassword, "wrong")
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, load)))
}

func TestStorageRejectsMalformedRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  *codec.Command
	}{
		{"missing key type", request(common.CmdTStorageStore).
			AppendString(common.FieldTIdentity, "a").
			AppendString(common.FieldTData, "b")},
		{"unknown key type", request(common.CmdTStorageStore).
			AppendString(common.FieldTIdentity, "a").
			AppendString(common.FieldTData, "b").
			AppendUint16(common.FieldTKeyType, 9)},
		{"two identities", request(common.CmdTStorageLoad).
			AppendString(common.FieldTIdentity, "a").
			AppendString(common.FieldTIdentity, "b")},
		{"empty identity", request(common.CmdTStorageRemove).
			AppendString(common.FieldTIdentity, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, tt.req)))
		})
	}
}

// --------------------------------------------------------------------------
// Crypto
// --------------------------------------------------------------------------

func keygen(t *testing.T, s *Server, curve crypto.Curve) (priv, pub []byte) {
	t.Helper()
	resp := handle(t, s, request(common.CmdTKeygen).AppendByte(common.FieldTCurveType, byte(curve)))
	return first(t, resp, common.FieldTPrivateKey), first(t, resp, common.FieldTPublicKey)
}

func TestKeygenDefaultCurve(t *testing.T) {
	s := newTestServer(t)
	resp := handle(t, s, request(common.CmdTKeygen))
	assert.Equal(t, byte(DefaultCurve), first(t, resp, common.FieldTPublicKey)[0])
}

func TestEncryptForPublicKeys(t *testing.T) {
	s := newTestServer(t)
	privA, pubA := keygen(t, s, crypto.CurveX25519)
	privB, pubB := keygen(t, s, crypto.CurveP256)

	enc := request(common.CmdTEncrypt).
		AppendString(common.FieldTData, "for both").
		Append(common.FieldTPublicKey, pubA).
		AppendString(common.FieldTIdentity, "a").
		Append(common.FieldTPublicKey, pubB).
		AppendString(common.FieldTIdentity, "b")
	envelope := first(t, handle(t, s, enc), common.FieldTData)

	for identity, priv := range map[string][]byte{"a": privA, "b": privB} {
		dec := request(common.CmdTDecrypt).
			Append(common.FieldTPrivateKey, priv).
			Append(common.FieldTData, envelope).
			AppendString(common.FieldTIdentity, identity)
		assert.Equal(t, "for both", string(first(t, handle(t, s, dec), common.FieldTData)), identity)
	}

	// unpaired public keys are rejected
	enc = request(common.CmdTEncrypt).
		AppendString(common.FieldTData, "x").
		Append(common.FieldTPublicKey, pubA)
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, enc)))
}

func TestPasswordCommands(t *testing.T) {
	s := newTestServer(t)

	enc := request(common.CmdTEncryptPassword).
		AppendString(common.FieldTPassword, "pw").
		AppendString(common.FieldTData, "plain")
	sealed := first(t, handle(t, s, enc), common.FieldTData)

	dec := request(common.CmdTDecryptPassword).
		AppendString(common.FieldTPassword, "pw").
		Append(common.FieldTData, sealed)
	assert.Equal(t, "plain", string(first(t, handle(t, s, dec), common.FieldTData)))
}

func TestSignAndVerify(t *testing.T) {
	s := newTestServer(t)
	priv, pub := keygen(t, s, crypto.CurveEd25519)

	sign := request(common.CmdTSign).
		Append(common.FieldTPrivateKey, priv).
		AppendString(common.FieldTData, "message")
	signature := first(t, handle(t, s, sign), common.FieldTSignature)

	verify := request(common.CmdTVerify).
		AppendString(common.FieldTData, "message").
		Append(common.FieldTSignature, signature).
		Append(common.FieldTPublicKey, pub)
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, verify)))

	verify = request(common.CmdTVerify).
		AppendString(common.FieldTData, "tampered").
		Append(common.FieldTSignature, signature).
		Append(common.FieldTPublicKey, pub)
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, verify)))
}

func TestHash(t *testing.T) {
	s := newTestServer(t)
	want := sha256.Sum256([]byte("abc"))

	resp := handle(t, s, request(common.CmdTHash).AppendString(common.FieldTData, "abc"))
	assert.Equal(t, want[:], first(t, resp, common.FieldTData))

	resp = handle(t, s, request(common.CmdTHash).
		AppendByte(common.FieldTHashFunc, byte(crypto.HashSHA512)).
		AppendString(common.FieldTData, "abc"))
	assert.Len(t, first(t, resp, common.FieldTData), 64)
}

// --------------------------------------------------------------------------
// Certificates
// --------------------------------------------------------------------------

func TestCertificateLifecycle(t *testing.T) {
	s := newTestServer(t)

	custom, err := ca.PackKeyValues(map[string][]byte{"model": []byte("K-1")})
	require.NoError(t, err)

	create := request(common.CmdTCertCreate).
		AppendString(common.FieldTIdentity, "sensor-7").
		AppendByte(common.FieldTCurveType, byte(crypto.CurveP256)).
		Append(common.FieldTData, custom)
	resp := handle(t, s, create)
	priv := first(t, resp, common.FieldTPrivateKey)
	cert := first(t, resp, common.FieldTCertificate)

	// get by identity and the root
	got := handle(t, s, request(common.CmdTCertGet).AppendString(common.FieldTIdentity, "sensor-7"))
	assert.Equal(t, cert, first(t, got, common.FieldTCertificate))
	root := first(t, handle(t, s, request(common.CmdTCertGet).AppendString(common.FieldTIdentity, identifier.RootID)), common.FieldTCertificate)

	verify := request(common.CmdTCertVerify).
		Append(common.FieldTCertificate, cert).
		Append(common.FieldTRootCertificate, root)
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, verify)))

	parsed := first(t, handle(t, s, request(common.CmdTCertParse).Append(common.FieldTCertificate, cert)), common.FieldTData)
	data, err := ca.ParseKeyValues(parsed)
	require.NoError(t, err)
	assert.Equal(t, "K-1", string(data["model"]))
	assert.Equal(t, "sensor-7", string(data[ca.IdentityKey]))
	assert.NotEmpty(t, data[ca.PublicKeyKey])

	// the certificate addresses an encryption recipient by its identity
	enc := request(common.CmdTEncrypt).
		AppendString(common.FieldTData, "to the sensor").
		Append(common.FieldTCertificate, cert)
	envelope := first(t, handle(t, s, enc), common.FieldTData)
	dec := request(common.CmdTDecrypt).
		Append(common.FieldTPrivateKey, priv).
		Append(common.FieldTData, envelope).
		AppendString(common.FieldTIdentity, "sensor-7")
	assert.Equal(t, "to the sensor", string(first(t, handle(t, s, dec), common.FieldTData)))

	isRevoked := func() byte {
		resp := handle(t, s, request(common.CmdTCheckIsRevoked).Append(common.FieldTCertificate, cert))
		return first(t, resp, common.FieldTOptional1)[0]
	}
	assert.Equal(t, byte(0), isRevoked())

	// revoking needs the matching private key
	otherPriv, _ := keygen(t, s, crypto.CurveP256)
	revoke := request(common.CmdTCertRevoke).
		AppendString(common.FieldTIdentity, "sensor-7").
		Append(common.FieldTPrivateKey, otherPriv)
	assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, revoke)))

	revoke = request(common.CmdTCertRevoke).
		AppendString(common.FieldTIdentity, "sensor-7").
		Append(common.FieldTPrivateKey, priv)
	assert.Equal(t, common.ResultOk, resultOf(t, handle(t, s, revoke)))
	assert.Equal(t, byte(1), isRevoked())

	info := handle(t, s, request(common.CmdTCRLInfo))
	last, ok := info.Time(common.FieldTCRLLast)
	require.True(t, ok)
	next, ok := info.Time(common.FieldTCRLNext)
	require.True(t, ok)
	assert.False(t, last.IsZero())
	assert.True(t, next.After(last))
}

func TestCertificateCreateRejects(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  *codec.Command
	}{
		{"missing curve", request(common.CmdTCertCreate).
			AppendString(common.FieldTIdentity, "x")},
		{"encryption curve", request(common.CmdTCertCreate).
			AppendString(common.FieldTIdentity, "x").
			AppendByte(common.FieldTCurveType, byte(crypto.CurveX25519))},
		{"two data fields", request(common.CmdTCertCreate).
			AppendString(common.FieldTIdentity, "x").
			AppendByte(common.FieldTCurveType, byte(crypto.CurveP256)).
			AppendString(common.FieldTData, "").
			AppendString(common.FieldTData, "")},
		{"root identity", request(common.CmdTCertCreate).
			AppendString(common.FieldTIdentity, identifier.RootID).
			AppendByte(common.FieldTCurveType, byte(crypto.CurveP256))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, common.ResultGeneralError, resultOf(t, handle(t, s, tt.req)))
		})
	}
}

// --------------------------------------------------------------------------
// Links
// --------------------------------------------------------------------------

func TestServeAnswersOverLink(t *testing.T) {
	s := newTestServer(t)
	l := memory.NewListener()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, l) }()

	link, err := l.Dial()
	require.NoError(t, err)
	caller := dispatcher.New(link, dispatcher.DefaultConfig("test-caller"))
	defer caller.Close()

	replies := make(chan *codec.Command, 10)
	caller.Register(dispatcher.ProcessorFunc(func(cmd *codec.Command) bool {
		replies <- cmd
		return true
	}))
	caller.Start(ctx)

	ids := map[uint32]bool{}
	for i := 0; i < 5; i++ {
		id, err := caller.Send(codec.NewCommand(common.CmdTPing, 0).AppendString(common.FieldTToken, "t"))
		require.NoError(t, err)
		ids[id] = true
	}
	for i := 0; i < 5; i++ {
		select {
		case reply := <-replies:
			assert.True(t, ids[reply.RequestID], "reply to an unknown request %d", reply.RequestID)
			delete(ids, reply.RequestID)
		case <-time.After(2 * time.Second):
			t.Fatal("missing reply")
		}
	}

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
