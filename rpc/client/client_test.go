package client

import (
	"context"
	"crypto/sha256"
	"sync"
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
	"github.com/ValentinKolb/kBridge/rpc/server"
	"github.com/ValentinKolb/kBridge/rpc/transport/memory"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClientConfig() common.ClientConfig {
	config := common.DefaultClientConfig()
	config.Transport.Type = common.TransportMemory
	config.Link.ProbeIntervalMillis = 50
	config.Link.ProbeMisses = 100
	config.TimeoutSecond = 5
	return config
}

// newTestClient starts an in-process backend and returns a client connected
// to it. Both are stopped when the test ends.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	provider := crypto.NewNaClProvider(crypto.KDFParams{Time: 1, Memory: 64, Threads: 1})
	vault := store.NewVault(permanent.NewMemoryStore(8), temporary.NewStore(8), provider)
	authority, err := ca.NewLocalCA(ca.Config{Name: "test root", Validity: time.Hour, CRLValidity: time.Hour}, provider)
	require.NoError(t, err)

	serverConfig := common.DefaultServerConfig()
	serverConfig.Link = testClientConfig().Link
	s, err := server.New(serverConfig,
		server.NewPingProcessor(),
		server.NewStorageProcessor(vault),
		server.NewCryptoProcessor(provider),
		server.NewCertificateProcessor(authority, ca.NewCRLRefresher(authority, time.Hour)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	l := memory.NewListener()
	served := make(chan struct{})
	go func() {
		defer close(served)
		s.Serve(ctx, l)
	}()

	link, err := l.Dial()
	require.NoError(t, err)
	c := New(ctx, link, testClientConfig())

	t.Cleanup(func() {
		c.Close()
		cancel()
		<-served
	})
	return c
}

// newSilentClient returns a client whose peer reads every frame but never
// answers
func newSilentClient(t *testing.T, config common.ClientConfig) *Client {
	t.Helper()
	a, b := memory.NewPair()
	b.SetReceiver(func([]byte) {})
	c := New(context.Background(), a, config)
	t.Cleanup(func() {
		c.Close()
		b.Close()
	})
	return c
}

func TestPing(t *testing.T) {
	c := newTestClient(t)
	rtt, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestStorage(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, store.StoreTypePermanent, "config", []byte("v1"), nil))
	require.NoError(t, c.Save(ctx, store.StoreTypeTemporary, "session", []byte("v2"), []byte("pin")))

	got, err := c.Load(ctx, "config", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	got, err = c.LoadFrom(ctx, store.StoreTypeTemporary, "session", []byte("pin"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	_, err = c.LoadFrom(ctx, store.StoreTypeTemporary, "config", nil)
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	_, err = c.LoadFrom(ctx, store.StoreTypeUnknown, "config", nil)
	assert.True(t, errs.Is(err, errs.ErrValidation))

	require.NoError(t, c.Remove(ctx, "config"))
	err = c.Remove(ctx, "config")
	assert.True(t, errs.Is(err, errs.ErrNotFound))
	assert.False(t, errs.IsRetryable(err))
}

func TestKeyStorage(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SaveKey(ctx, store.StoreTypePermanent, identifier.RolePrivate, 0x2A, []byte("private"), nil))
	require.NoError(t, c.SaveKey(ctx, store.StoreTypePermanent, identifier.RolePublic, 0x2A, []byte("public"), nil))

	priv, err := c.LoadKey(ctx, identifier.RolePrivate, 0x2A, nil)
	require.NoError(t, err)
	assert.Equal(t, "private", string(priv))

	// the key is stored under the identifier of role and handle
	pub, err := c.Load(ctx, identifier.MustKey(identifier.RolePublic, 0x2A), nil)
	require.NoError(t, err)
	assert.Equal(t, "public", string(pub))

	require.NoError(t, c.RemoveKey(ctx, identifier.RolePrivate, 0x2A))
	_, err = c.LoadKey(ctx, identifier.RolePrivate, 0x2A, nil)
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestCrypto(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	priv, pub, err := c.Keygen(ctx, crypto.CurveX25519)
	require.NoError(t, err)

	envelope, err := c.Encrypt(ctx, []byte("hello"), []crypto.Recipient{{Identity: "me", PublicKey: pub}})
	require.NoError(t, err)
	plain, err := c.Decrypt(ctx, "me", priv, envelope)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	_, err = c.Decrypt(ctx, "someone else", priv, envelope)
	assert.True(t, errs.Is(err, errs.ErrCrypto))

	sealed, err := c.EncryptPassword(ctx, []byte("pw"), []byte("data"))
	require.NoError(t, err)
	plain, err = c.DecryptPassword(ctx, []byte("pw"), sealed)
	require.NoError(t, err)
	assert.Equal(t, "data", string(plain))

	signPriv, signPub, err := c.Keygen(ctx, crypto.CurveEd25519)
	require.NoError(t, err)
	signature, err := c.Sign(ctx, signPriv, []byte("msg"))
	require.NoError(t, err)

	ok, err := c.Verify(ctx, signPub, []byte("msg"), signature)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Verify(ctx, signPub, []byte("other"), signature)
	require.NoError(t, err)
	assert.False(t, ok)

	digest, err := c.Hash(ctx, crypto.HashSHA256, []byte("abc"))
	require.NoError(t, err)
	want := sha256.Sum256([]byte("abc"))
	assert.Equal(t, want[:], digest)
}

func TestCertificates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	priv, cert, err := c.CreateCertificate(ctx, "gateway", crypto.CurveP256, map[string][]byte{"site": []byte("north")})
	require.NoError(t, err)

	fetched, err := c.Certificate(ctx, "gateway")
	require.NoError(t, err)
	assert.Equal(t, cert, fetched)

	root, err := c.RootCertificate(ctx)
	require.NoError(t, err)
	ok, err := c.VerifyCertificate(ctx, cert, root)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.VerifyCertificate(ctx, root, cert)
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := c.ParseCertificate(ctx, cert)
	require.NoError(t, err)
	assert.Equal(t, "north", string(data["site"]))
	assert.Equal(t, "gateway", string(data[ca.IdentityKey]))

	signature, err := c.Sign(ctx, priv, []byte("report"))
	require.NoError(t, err)
	ok, err = c.VerifyWithCertificate(ctx, cert, []byte("report"), signature)
	require.NoError(t, err)
	assert.True(t, ok)

	envelope, err := c.EncryptFor(ctx, []byte("config"), cert)
	require.NoError(t, err)
	plain, err := c.Decrypt(ctx, "gateway", priv, envelope)
	require.NoError(t, err)
	assert.Equal(t, "config", string(plain))

	revoked, err := c.IsRevoked(ctx, cert)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.RevokeCertificate(ctx, "gateway", priv))
	revoked, err = c.IsRevoked(ctx, cert)
	require.NoError(t, err)
	assert.True(t, revoked)

	last, next, err := c.CRLInfo(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
	assert.True(t, next.After(last))

	_, err = c.Certificate(ctx, "unknown")
	assert.True(t, errs.Is(err, errs.ErrCA))
}

func TestConcurrentCalls(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte{byte(i)}
			digest, err := c.Hash(ctx, crypto.HashSHA256, data)
			if assert.NoError(t, err) {
				want := sha256.Sum256(data)
				assert.Equal(t, want[:], digest)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, c.InFlight())
}

func TestCallTimers(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Hash(context.Background(), crypto.HashSHA256, []byte("x"))
	require.NoError(t, err)

	timer, ok := c.Timers().Get(common.CmdTHash.String()).(gometrics.Timer)
	require.True(t, ok)
	assert.Equal(t, int64(1), timer.Count())
}

func TestCallTimeout(t *testing.T) {
	c := newSilentClient(t, testClientConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Hash(ctx, crypto.HashSHA256, []byte("x"))
	assert.True(t, errs.Is(err, errs.ErrTimeout))
	assert.True(t, errs.IsRetryable(err))
	assert.Equal(t, 0, c.InFlight(), "the slot is released after a timeout")
}

func TestCallCapacity(t *testing.T) {
	config := testClientConfig()
	config.WaiterSlots = 1
	c := newSilentClient(t, config)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	blocked := make(chan error, 1)
	go func() {
		_, err := c.Hash(ctx, crypto.HashSHA256, []byte("x"))
		blocked <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.Hash(context.Background(), crypto.HashSHA256, []byte("y"))
	assert.True(t, errs.Is(err, errs.ErrCapacity))

	cancel()
	assert.True(t, errs.Is(<-blocked, errs.ErrTimeout))
}

func TestFailureClass(t *testing.T) {
	tests := []struct {
		cmd  common.CommandType
		want error
	}{
		{common.CmdTStorageLoad, errs.ErrNotFound},
		{common.CmdTStorageStore, errs.ErrValidation},
		{common.CmdTDecrypt, errs.ErrCrypto},
		{common.CmdTCertRevoke, errs.ErrCA},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, failureClass(tt.cmd))
		})
	}
}

func TestCallRejectsInvalidCommand(t *testing.T) {
	c := newSilentClient(t, testClientConfig())
	_, err := c.Call(context.Background(), codec.NewCommand(common.CmdTHash, 0))
	assert.True(t, errs.Is(err, errs.ErrValidation))
	assert.Equal(t, 0, c.InFlight())
}
