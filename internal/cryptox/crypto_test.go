package cryptox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	assert.Equal(t, key1, key2)
	assert.Equal(t, "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39", hex.EncodeToString(key1))
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")
	assert.NotEqual(t, DeriveKey(password, []byte("salt-1")), DeriveKey(password, []byte("salt-2")))
}

func TestNewKey(t *testing.T) {
	k1, err := NewKey()
	require.NoError(t, err)
	k2, err := NewKey()
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.NotEqual(t, k1, k2)
}

func TestKeyNormalization(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)
	short := []byte("short")
	shortSum := sha256.Sum256(short)
	textSum := sha256.Sum256([]byte("correct horse battery staple"))
	hex16 := bytes.Repeat([]byte{0x01}, 16)
	hex16Sum := sha256.Sum256(hex16)

	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"32 raw bytes kept", KeyFromBytes(raw), raw},
		{"short bytes hashed", KeyFromBytes(short), shortSum[:]},
		{"64-char hex decoded", KeyFromString(hex.EncodeToString(raw)), raw},
		{"other hex length hashed after decode", KeyFromString(hex.EncodeToString(hex16)), hex16Sum[:]},
		{"passphrase hashed", KeyFromString("correct horse battery staple"), textSum[:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
			assert.Len(t, tt.got, KeySize)
		})
	}
}

func TestParseHexKey(t *testing.T) {
	k, err := ParseHexKey("00ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, k)

	_, err = ParseHexKey("not-hex")
	assert.ErrorIs(t, err, common.ErrInvalidKeyFormat)
}

func TestEncryptDecryptFile_RoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 10000} {
		plaintext := bytes.Repeat([]byte{0x5a}, size)
		in := writeTemp(t, "report.pdf", plaintext)
		key, err := NewKey()
		require.NoError(t, err)

		encPath, err := EncryptFile(in, key)
		require.NoError(t, err)
		assert.Equal(t, in+".enc", encPath)

		enc, err := os.ReadFile(encPath)
		require.NoError(t, err)
		wantLen := IVSize + (size/16+1)*16
		assert.Len(t, enc, wantLen, "size %d", size)

		require.NoError(t, os.Remove(in))
		decPath, err := DecryptFile(encPath, key)
		require.NoError(t, err)
		assert.Equal(t, in, decPath)

		got, err := os.ReadFile(decPath)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got, "size %d", size)
	}
}

func TestEncryptFile_FreshIVEachTime(t *testing.T) {
	in := writeTemp(t, "a.txt", []byte("same content"))
	key, _ := NewKey()

	out1 := filepath.Join(t.TempDir(), "one")
	out2 := filepath.Join(t.TempDir(), "two")
	require.NoError(t, EncryptFileTo(in, out1, key))
	require.NoError(t, EncryptFileTo(in, out2, key))

	b1, _ := os.ReadFile(out1)
	b2, _ := os.ReadFile(out2)
	assert.NotEqual(t, b1[:IVSize], b2[:IVSize])
	assert.NotEqual(t, b1, b2)
}

func TestDecryptFile_NoEncSuffix(t *testing.T) {
	in := writeTemp(t, "blob", []byte("payload"))
	key, _ := NewKey()

	enc := filepath.Join(filepath.Dir(in), "blob.bin")
	require.NoError(t, EncryptFileTo(in, enc, key))

	out, err := DecryptFile(enc, key)
	require.NoError(t, err)
	assert.Equal(t, enc+".dec", out)
}

func TestDecryptFile_Failures(t *testing.T) {
	key, _ := NewKey()
	other := bytes.Repeat([]byte{0x42}, KeySize)

	in := writeTemp(t, "doc.txt", []byte("some secret text"))
	enc, err := EncryptFile(in, key)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out")
		err := DecryptFileTo(enc, out, other)
		// a wrong key almost always breaks the padding
		if err != nil {
			assert.ErrorIs(t, err, common.ErrDecryptionFailed)
			assert.NoFileExists(t, out)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		short := writeTemp(t, "short.enc", make([]byte, 10))
		out := filepath.Join(t.TempDir(), "out")
		err := DecryptFileTo(short, out, key)
		assert.ErrorIs(t, err, common.ErrDecryptionFailed)
		assert.NoFileExists(t, out)
	})

	t.Run("not block aligned", func(t *testing.T) {
		bad := writeTemp(t, "bad.enc", make([]byte, IVSize+20))
		_, err := DecryptFile(bad, key)
		assert.ErrorIs(t, err, common.ErrDecryptionFailed)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(bad), "bad"))
	})

	t.Run("bad key length", func(t *testing.T) {
		_, err := DecryptFile(enc, []byte("short"))
		assert.ErrorIs(t, err, common.ErrInvalidKeyFormat)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := DecryptFile(filepath.Join(t.TempDir(), "nope.enc"), key)
		assert.ErrorIs(t, err, common.ErrFilesystem)
	})
}

func TestPKCS7(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 16)
	assert.Len(t, padded, 16)
	assert.Equal(t, byte(13), padded[15])

	got, err := pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	full := pkcs7Pad(make([]byte, 16), 16)
	assert.Len(t, full, 32)

	bad := append([]byte("abcdefghijklmno"), 0x00)
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)

	bad[15] = 0x03
	bad[14] = 0x01
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)
}

func TestSealOpenJSON(t *testing.T) {
	key := DeriveKey([]byte("pass"), []byte("salt-salt-salt-1"))
	in := map[string]string{"file-1": "deadbeef"}

	ct, nonce, err := SealJSON(in, key)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, OpenJSON(ct, nonce, key, &out))
	assert.Equal(t, in, out)

	wrong := DeriveKey([]byte("other"), []byte("salt-salt-salt-1"))
	err = OpenJSON(ct, nonce, wrong, &out)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)

	err = OpenJSON(ct, []byte("short"), key, &out)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}
