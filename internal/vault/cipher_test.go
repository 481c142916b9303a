package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(Config{EncryptionKey: "k1"})
	require.NoError(t, err)

	blob, err := c.Seal([]byte(`{"bot_token":"xoxb-1"}`), 7, ServiceSlack)
	require.NoError(t, err)

	got, err := c.Open(blob, 7, ServiceSlack)
	require.NoError(t, err)
	assert.Equal(t, `{"bot_token":"xoxb-1"}`, string(got))
}

func TestCipher_NonceIsFresh(t *testing.T) {
	c, err := NewCipher(Config{EncryptionKey: "k1"})
	require.NoError(t, err)

	a, err := c.Seal([]byte("same"), 1, ServiceSlack)
	require.NoError(t, err)
	b, err := c.Seal([]byte("same"), 1, ServiceSlack)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_RejectsWrongKeyAndRow(t *testing.T) {
	c1, err := NewCipher(Config{EncryptionKey: "k1"})
	require.NoError(t, err)
	c2, err := NewCipher(Config{EncryptionKey: "k2"})
	require.NoError(t, err)

	blob, err := c1.Seal([]byte("secret"), 1, ServiceSlack)
	require.NoError(t, err)

	_, err = c2.Open(blob, 1, ServiceSlack)
	assert.Error(t, err, "other key")

	_, err = c1.Open(blob, 2, ServiceSlack)
	assert.Error(t, err, "other user")

	_, err = c1.Open(blob, 1, ServiceAzureOpenAI)
	assert.Error(t, err, "other service")
}

func TestCipher_RejectsTampering(t *testing.T) {
	c, err := NewCipher(Config{EncryptionKey: "k1"})
	require.NoError(t, err)

	blob, err := c.Seal([]byte("secret"), 1, ServiceSlack)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Open(base64.RawURLEncoding.EncodeToString(raw), 1, ServiceSlack)
	assert.Error(t, err)

	_, err = c.Open("AAEC", 1, ServiceSlack)
	assert.ErrorIs(t, err, errShortBlob)

	_, err = c.Open("not base64!", 1, ServiceSlack)
	assert.Error(t, err)
}

func TestNewCipher_RequiresKey(t *testing.T) {
	_, err := NewCipher(Config{})
	assert.Error(t, err)
}
