package tlsx

import (
	"crypto/tls"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSigned_Handshake(t *testing.T) {
	ss, err := GenerateSelfSigned()
	require.NoError(t, err)

	dir := t.TempDir()
	certFile, keyFile, err := ss.WriteFiles(dir)
	require.NoError(t, err)

	serverCfg, err := ServerConfig(certFile, keyFile)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(certFile, "localhost")
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer c.Close()
		_, err = io.Copy(c, io.LimitReader(c, 4))
		done <- err
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	require.NoError(t, <-done)
}

func TestClientTLS_RejectsOtherCertificate(t *testing.T) {
	served, err := GenerateSelfSigned()
	require.NoError(t, err)
	trusted, err := GenerateSelfSigned()
	require.NoError(t, err)

	serverCfg, err := served.ServerTLS()
	require.NoError(t, err)
	clientCfg, err := trusted.ClientTLS("localhost")
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_ = c.(*tls.Conn).Handshake()
		_ = c.Close()
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn := tls.Client(raw, clientCfg)
	defer conn.Close()

	assert.Error(t, conn.Handshake())
}

func TestClientConfig_Errors(t *testing.T) {
	_, err := ClientConfig(filepath.Join(t.TempDir(), "missing.crt"), "")
	assert.Error(t, err)

	ss, err := GenerateSelfSigned()
	require.NoError(t, err)
	_, keyFile, err := ss.WriteFiles(t.TempDir())
	require.NoError(t, err)

	_, err = ClientConfig(keyFile, "")
	assert.Error(t, err)

	cfg, err := ClientConfig("", "example.org")
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.Equal(t, "example.org", cfg.ServerName)
}

func TestServerConfig_MissingFiles(t *testing.T) {
	_, err := ServerConfig("nope.crt", "nope.key")
	assert.Error(t, err)
}

func TestGenerateSelfSigned_Hosts(t *testing.T) {
	ss, err := GenerateSelfSigned("files.local", "10.0.0.5")
	require.NoError(t, err)

	cfg, err := ss.ServerTLS()
	require.NoError(t, err)
	leaf := cfg.Certificates[0]
	require.NotEmpty(t, leaf.Certificate)
}
