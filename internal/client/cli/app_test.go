package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/client/client"
	"github.com/dmitrijs2005/securexfer/internal/client/config"
	"github.com/dmitrijs2005/securexfer/internal/client/keystore"
	"github.com/dmitrijs2005/securexfer/internal/client/repositories/history"
	"github.com/dmitrijs2005/securexfer/internal/discovery"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/server/transfer"
	"github.com/dmitrijs2005/securexfer/internal/storage"
	"github.com/dmitrijs2005/securexfer/internal/tlsx"
	"github.com/dmitrijs2005/securexfer/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*App
	out  *bytes.Buffer
	addr string
}

// newTestApp starts a loopback TLS server with a dir backend and returns an
// App wired to it, with history enabled and output captured.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	cert, err := tlsx.GenerateSelfSigned()
	require.NoError(t, err)
	serverTLS, err := cert.ServerTLS()
	require.NoError(t, err)
	clientTLS, err := cert.ClientTLS("localhost")
	require.NoError(t, err)

	backend, err := storage.NewDirBackend(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	srv, err := transfer.NewServer(transfer.Config{
		UploadDir:        t.TempDir(),
		HandshakeTimeout: 2 * time.Second,
		Session:          transport.SessionOptions{ReadTimeout: 2 * time.Second},
	}, serverTLS, backend, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerAddr = srv.Addr().String()
	cfg.DownloadDir = filepath.Join(dir, "downloads")
	cfg.KeysFile = filepath.Join(dir, "keys.json")
	cfg.HistoryDB = filepath.Join(dir, "history.db")

	tcfg := transport.DefaultClientConfig(cfg.ServerAddr, clientTLS)
	tcfg.RetryDelay = 10 * time.Millisecond
	tr := transport.NewClient(tcfg, logging.Nop())

	db, err := client.InitDatabase(ctx, cfg.HistoryDB)
	require.NoError(t, err)

	keys := keystore.New()
	fc, err := client.NewFileClient(tr, keys, cfg.DownloadDir, client.WithHistory(history.NewSQLiteRepository(db)))
	require.NoError(t, err)

	a := newApp(cfg, fc, keys, logging.Nop())
	a.db = db
	out := &bytes.Buffer{}
	a.out = out

	t.Cleanup(func() {
		_ = a.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		<-done
	})
	return &testApp{App: a, out: out, addr: cfg.ServerAddr}
}

func stubPassphrases(t *testing.T, answers ...string) {
	t.Helper()
	orig := getPassphrase
	i := 0
	getPassphrase = func(io.Writer, string) ([]byte, error) {
		p := answers[i%len(answers)]
		i++
		return []byte(p), nil
	}
	t.Cleanup(func() { getPassphrase = orig })
}

func uploadedID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(line, "File ID: "); ok {
			return id
		}
	}
	t.Fatalf("no file id in output %q", out)
	return ""
}

func TestApp_UploadListDownloadHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	src := filepath.Join(t.TempDir(), "photo.jpg")
	data := bytes.Repeat([]byte("0123456789"), 3000)
	require.NoError(t, os.WriteFile(src, data, 0o600))

	require.NoError(t, a.Connect(ctx, nil))
	assert.Equal(t, "("+a.addr+")", a.getStatus())

	require.NoError(t, a.Upload(ctx, []string{src}))
	id := uploadedID(t, a.out.String())

	// the key was persisted right after the upload
	raw, err := os.ReadFile(a.config.KeysFile)
	require.NoError(t, err)
	var saved map[string]string
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Contains(t, saved, id)

	a.out.Reset()
	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, a.out.String(), id)
	assert.Contains(t, a.out.String(), "photo.jpg.enc")
	assert.Contains(t, a.out.String(), "image/jpeg")

	out := filepath.Join(t.TempDir(), "copy.jpg")
	require.NoError(t, a.Download(ctx, []string{id, out}))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	a.out.Reset()
	require.NoError(t, a.History(ctx, []string{"10"}))
	assert.Contains(t, a.out.String(), "upload")
	assert.Contains(t, a.out.String(), "download")

	require.NoError(t, a.Disconnect(ctx, nil))
	assert.Equal(t, "(offline)", a.getStatus())
}

func TestApp_UsageErrors(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	assert.ErrorIs(t, a.Upload(ctx, nil), errUsage)
	assert.ErrorIs(t, a.Download(ctx, nil), errUsage)
	assert.ErrorIs(t, a.Download(ctx, []string{"a", "b", "c"}), errUsage)
	assert.ErrorIs(t, a.History(ctx, []string{"many"}), errUsage)
}

func TestApp_SealThenLoadKeys(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	a.keys.Set("files/a", "00ff")

	stubPassphrases(t, "correct horse")
	require.NoError(t, a.Seal(ctx, nil))

	sealed, err := keystore.IsSealed(a.config.KeysFile)
	require.NoError(t, err)
	assert.True(t, sealed)

	// saves after sealing stay sealed
	a.keys.Set("files/b", "ee00")
	require.NoError(t, a.SaveKeys(ctx, nil))
	sealed, err = keystore.IsSealed(a.config.KeysFile)
	require.NoError(t, err)
	assert.True(t, sealed)

	b := newTestApp(t)
	b.config.KeysFile = a.config.KeysFile
	require.NoError(t, b.LoadKeys(ctx, nil))
	assert.Equal(t, 2, b.keys.Len())
	assert.Contains(t, b.out.String(), "Loaded 2 keys")
}

func TestApp_SealRejectsMismatch(t *testing.T) {
	a := newTestApp(t)
	stubPassphrases(t, "one", "two")

	require.Error(t, a.Seal(context.Background(), nil))
	_, err := os.Stat(a.config.KeysFile)
	assert.True(t, os.IsNotExist(err))
	assert.Nil(t, a.passphrase)
}

func TestApp_LoadKeysWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	a.keys.Set("files/a", "00ff")
	require.NoError(t, a.keys.SaveSealed(a.config.KeysFile, []byte("right")))

	stubPassphrases(t, "wrong")
	require.Error(t, a.LoadKeys(ctx, nil))
	assert.Nil(t, a.passphrase)
}

func TestApp_KeysAndSaveKeys(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	require.NoError(t, a.Keys(ctx, nil))
	assert.Contains(t, a.out.String(), "No keys")

	a.keys.Set("files/x", "00112233445566778899")
	a.out.Reset()
	require.NoError(t, a.Keys(ctx, nil))
	assert.Contains(t, a.out.String(), "files/x  00112233...")

	a.keys.Set("files/c", "cc")
	a.keys.Set("files/a", "aa")
	for i := 0; i < 5; i++ {
		a.out.Reset()
		require.NoError(t, a.Keys(ctx, nil))
		assert.Equal(t, "files/a  aa\nfiles/c  cc\nfiles/x  00112233...\n", a.out.String())
	}

	path := filepath.Join(t.TempDir(), "k.json")
	require.NoError(t, a.SaveKeys(ctx, []string{path}))
	sealed, err := keystore.IsSealed(path)
	require.NoError(t, err)
	assert.False(t, sealed)
}

func TestApp_DiscoverConnectsToChoice(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	host, port, ok := strings.Cut(a.addr, ":")
	require.True(t, ok)
	a.browse = func(context.Context) ([]discovery.Server, error) {
		return []discovery.Server{{Instance: "nas", Host: "nas.local.", Port: mustAtoi(t, port), Addrs: []string{host}}}, nil
	}
	a.reader = bufio.NewReader(strings.NewReader("1\n"))

	require.NoError(t, a.Discover(ctx, nil))
	assert.True(t, a.client.Connected())
	assert.Contains(t, a.out.String(), "1) nas")
	assert.Contains(t, a.out.String(), "Connected to "+a.addr)
}

func TestApp_DiscoverNothingFound(t *testing.T) {
	a := newTestApp(t)
	a.browse = func(context.Context) ([]discovery.Server, error) { return nil, nil }

	require.NoError(t, a.Discover(context.Background(), nil))
	assert.Contains(t, a.out.String(), "No servers found")
	assert.False(t, a.client.Connected())
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
