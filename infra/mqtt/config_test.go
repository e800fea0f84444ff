package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTLSFiles writes a self-signed robot certificate, its key and a CA
// bundle holding the same certificate.
func writeTLSFiles(t *testing.T) (cert, key, ca string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "grocerybot"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	cert = filepath.Join(dir, "robot.pem")
	key = filepath.Join(dir, "robot.key")
	ca = filepath.Join(dir, "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(cert, certPEM, 0o600))
	require.NoError(t, os.WriteFile(key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(ca, certPEM, 0o600))
	return cert, key, ca
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := writeTLSFiles(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.NotNil(t, tlsCfg.RootCAs)

	opts, err := NewClientOptions(Config{Broker: "ssl://broker:8883", ClientID: "bot", UseTLS: true, TLSConfig: tlsCfg})
	require.NoError(t, err)
	assert.Same(t, tlsCfg, opts.TLSConfig)
}

func TestNewClientOptions(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "credentials",
			cfg:  Config{Broker: "tcp://broker:1883", ClientID: "bot", Username: "u", Password: "p"},
			check: func(t *testing.T, cfg Config) {
				opts, err := NewClientOptions(cfg)
				require.NoError(t, err)
				assert.Equal(t, "u", opts.Username)
				assert.Equal(t, "p", opts.Password)
				assert.True(t, opts.AutoReconnect)
			},
		},
		{
			name: "tls auth method skips credentials",
			cfg:  Config{Broker: "tcp://broker:1883", ClientID: "bot", Username: "u", AuthMethod: "tls"},
			check: func(t *testing.T, cfg Config) {
				opts, err := NewClientOptions(cfg)
				require.NoError(t, err)
				assert.Empty(t, opts.Username)
			},
		},
		{
			name: "last will",
			cfg:  Config{Broker: "tcp://broker:1883", ClientID: "bot", LWTTopic: "shop/bot/status", LWTPayload: "offline", LWTQoS: 1, LWTRetain: true},
			check: func(t *testing.T, cfg Config) {
				opts, err := NewClientOptions(cfg)
				require.NoError(t, err)
				assert.True(t, opts.WillEnabled)
				assert.Equal(t, "shop/bot/status", opts.WillTopic)
				assert.Equal(t, "offline", string(opts.WillPayload))
				assert.True(t, opts.WillRetained)
			},
		},
		{
			name: "tls without files",
			cfg:  Config{Broker: "ssl://broker:8883", UseTLS: true},
			check: func(t *testing.T, cfg Config) {
				_, err := NewClientOptions(cfg)
				require.Error(t, err)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { tc.check(t, tc.cfg) })
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "grocerybot", cfg.Prefix)
	assert.Equal(t, CodecJSON, cfg.Codec)
	assert.Equal(t, "grocerybot/status", cfg.LWTTopic)
	assert.Equal(t, 200, cfg.PoseIntervalMS)
	if !strings.HasPrefix(cfg.ClientID, "grocerybot-") {
		t.Fatalf("client id %q", cfg.ClientID)
	}

	require.NoError(t, cfg.Validate(), "disabled config is always valid")
	cfg.Enabled = true
	require.NoError(t, cfg.Validate())
	cfg.Codec = "xml"
	require.Error(t, cfg.Validate())
}

func TestConfigQoSAndBackoff(t *testing.T) {
	cfg := Config{QoS: map[string]byte{"command": 1}, BackoffMS: 250}
	assert.Equal(t, byte(1), cfg.qos("command"))
	assert.Equal(t, byte(0), cfg.qos("telemetry"))
	assert.Equal(t, 250*time.Millisecond, cfg.backoff())
}
