package bridge

import (
	"context"
	"testing"

	"github.com/ValentinKolb/kBridge/rpc/client"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecipients(t *testing.T) {
	recipients, err := parseRecipients([]string{"alice=b64:AQI=", "bob=raw"})
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "alice", recipients[0].Identity)
	assert.Equal(t, []byte{1, 2}, recipients[0].PublicKey)
	assert.Equal(t, []byte("raw"), recipients[1].PublicKey)

	for _, bad := range [][]string{nil, {"no-separator"}, {"=key"}} {
		_, err := parseRecipients(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseCustomData(t *testing.T) {
	data, err := parseCustomData([]string{"vin=WVW123", "blob=b64:AAE="})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"vin": []byte("WVW123"), "blob": {0, 1}}, data)

	data, err = parseCustomData(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = parseCustomData([]string{"missing"})
	assert.Error(t, err)
}

func TestPerfIDWrapsAround(t *testing.T) {
	old := perfIDSpread
	perfIDSpread = 3
	t.Cleanup(func() { perfIDSpread = old })

	assert.Equal(t, perfID("save", 1), perfID("save", 4))
	assert.NotEqual(t, perfID("save", 1), perfID("load", 1))
}

func TestEmbeddedBackend(t *testing.T) {
	config := common.DefaultClientConfig()
	config.Transport.Type = common.TransportMemory

	tr, err := startEmbedded(&config)
	require.NoError(t, err)

	c := client.New(context.Background(), tr, config)
	t.Cleanup(func() {
		_ = c.Close()
		stopEmbedded()
		stopEmbedded = nil
	})

	_, err = c.Ping(context.Background())
	require.NoError(t, err)

	root, err := c.RootCertificate(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(root), "BEGIN CERTIFICATE")
}
