package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/client/models"
	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/cryptox"
	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

// UploadResult describes a completed upload.
type UploadResult struct {
	FileID   string
	Name     string
	Size     int64
	Checksum string
	Message  string
	// KeyStored is false when the server kept the file locally and returned
	// no identifier or key.
	KeyStored bool
	Warnings  []string
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	Path      string
	Size      int64
	Decrypted bool
	Warnings  []string
}

type downloadOptions struct {
	expected string
	key      string
}

// DownloadOption customizes one Download call.
type DownloadOption func(*downloadOptions)

// WithExpectedChecksum asks the server to verify the stored ciphertext
// against sum before streaming it.
func WithExpectedChecksum(sum string) DownloadOption {
	return func(o *downloadOptions) { o.expected = sum }
}

// WithKey overrides the key store lookup.
func WithKey(hexKey string) DownloadOption {
	return func(o *downloadOptions) { o.key = hexKey }
}

// Upload sends the file at path. On success the key returned by the server
// is stored under the new file id.
func (c *FileClient) Upload(ctx context.Context, path string) (*UploadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, err := filex.Size(path)
	if err != nil {
		return nil, err
	}
	sum, err := filex.Checksum(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)

	resp, err := c.tr.SendMessage(ctx, wire.Envelope{
		wire.KeyCommand:  wire.CommandUpload,
		wire.KeyFilename: name,
		wire.KeyFileSize: size,
		wire.KeyChecksum: sum,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status() != wire.StatusReady {
		return nil, replyError(resp)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrFilesystem, path, err)
	}
	err = c.tr.SendRaw(f, size)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	final, err := c.tr.ReceiveMessage()
	if err != nil {
		return nil, err
	}
	if final.Status() != wire.StatusSuccess {
		return nil, replyError(final)
	}

	res := &UploadResult{
		FileID:   final.String(wire.KeyFileID),
		Name:     name,
		Size:     size,
		Checksum: sum,
		Message:  final.Message(),
	}
	if got := final.String(wire.KeyChecksum); got != "" && got != sum {
		c.log.Warn(ctx, "server reported a different checksum", "file", name, "local", sum, "server", got)
		res.Warnings = append(res.Warnings, "server checksum differs from the local file")
	}

	hexKey := final.String(wire.KeyKey)
	if res.FileID != "" && hexKey != "" {
		c.keys.Set(res.FileID, hexKey)
		res.KeyStored = true
	}

	c.log.Info(ctx, "file uploaded", "file", name, "id", res.FileID, "size", size)
	c.record(ctx, &models.Transfer{
		RemoteID:  res.FileID,
		Name:      name,
		Direction: models.DirectionUpload,
		Size:      size,
		Checksum:  sum,
		CreatedAt: time.Now().UTC(),
	})
	return res, nil
}

// Download fetches file id into output. An empty output derives the name
// from the server's file name, minus the encryption suffix, inside the
// download directory. Without a known key the ciphertext is kept as is.
func (c *FileClient) Download(ctx context.Context, id, output string, opts ...DownloadOption) (*DownloadResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing file id", common.ErrMalformedMessage)
	}
	var o downloadOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := &DownloadResult{}
	hexKey := o.key
	if hexKey == "" {
		hexKey, _ = c.keys.Get(id)
	}
	if hexKey == "" {
		c.log.Warn(ctx, "no encryption key found", "id", id)
		res.Warnings = append(res.Warnings, "no encryption key found for this file")
	}

	req := wire.Envelope{
		wire.KeyCommand: wire.CommandDownload,
		wire.KeyFileID:  id,
	}
	if hexKey != "" {
		req[wire.KeyKey] = hexKey
	}
	if o.expected != "" {
		req[wire.KeyChecksum] = o.expected
	}

	resp, err := c.tr.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status() != wire.StatusReady {
		return nil, replyError(resp)
	}
	size, ok := resp.Int64(wire.KeyFileSize)
	if !ok || size < 0 {
		return nil, fmt.Errorf("%w: ready reply without file_size", common.ErrMalformedMessage)
	}
	remoteName := resp.String(wire.KeyFilename)
	if remoteName == "" {
		remoteName = id
	}
	if output == "" {
		output = filepath.Join(c.downloadDir, filex.SanitizeName(strings.TrimSuffix(remoteName, common.EncryptedSuffix)))
	}

	tmp := filex.StagingPath(c.downloadDir, remoteName)
	if err := c.receive(tmp, size); err != nil {
		_ = filex.RemoveIfExists(tmp)
		return nil, err
	}

	if announced := resp.String(wire.KeyChecksum); announced != "" {
		if got, err := filex.Checksum(tmp); err == nil && got != announced {
			c.log.Warn(ctx, "checksum mismatch", "checkpoint", CheckpointPostDownload, "id", id, "expected", announced, "actual", got)
			res.Warnings = append(res.Warnings, "received file checksum differs from the server's")
		}
	}

	final, err := c.tr.ReceiveMessage()
	if err != nil {
		_ = filex.RemoveIfExists(tmp)
		return nil, err
	}
	if final.Status() != wire.StatusSuccess {
		_ = filex.RemoveIfExists(tmp)
		return nil, replyError(final)
	}

	if hexKey == "" {
		if err := os.Rename(tmp, output); err != nil {
			_ = filex.RemoveIfExists(tmp)
			return nil, fmt.Errorf("%w: rename %s: %v", common.ErrFilesystem, tmp, err)
		}
		c.log.Warn(ctx, "file kept encrypted", "path", output)
		res.Warnings = append(res.Warnings, "file remains encrypted")
	} else {
		if err := decryptInto(tmp, output, hexKey); err != nil {
			return nil, err
		}
		res.Decrypted = true

		if plain := final.String(wire.KeyChecksum); plain != "" {
			if got, err := filex.Checksum(output); err == nil && got != plain {
				c.log.Warn(ctx, "checksum mismatch", "checkpoint", CheckpointPostDecrypt, "id", id, "expected", plain, "actual", got)
				res.Warnings = append(res.Warnings, "decrypted file checksum differs from the uploaded original")
			}
		}
	}

	res.Path = output
	if n, err := filex.Size(output); err == nil {
		res.Size = n
	}
	sum, _ := filex.Checksum(output)

	c.log.Info(ctx, "file downloaded", "id", id, "path", output, "decrypted", res.Decrypted)
	c.record(ctx, &models.Transfer{
		RemoteID:  id,
		Name:      filepath.Base(output),
		Direction: models.DirectionDownload,
		Size:      res.Size,
		Checksum:  sum,
		CreatedAt: time.Now().UTC(),
	})
	return res, nil
}

// receive streams exactly size raw bytes into path.
func (c *FileClient) receive(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrFilesystem, path, err)
	}
	got, err := c.tr.RecvRaw(f, size)
	closeErr := f.Close()
	if err != nil {
		if errors.Is(err, common.ErrFilesystem) {
			return err
		}
		return fmt.Errorf("%w: %d of %d bytes: %w", common.ErrIncompleteTransfer, got, size, err)
	}
	if got != size {
		return fmt.Errorf("%w: %d of %d bytes", common.ErrIncompleteTransfer, got, size)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %v", common.ErrFilesystem, path, closeErr)
	}
	return nil
}

// decryptInto decrypts tmp into out and removes tmp. On failure neither
// file is left behind. The key text is normalized like any other key
// material, so passphrases and short hex keys work too.
func decryptInto(tmp, out, keyText string) error {
	defer func() { _ = filex.RemoveIfExists(tmp) }()

	key := cryptox.KeyFromString(keyText)
	if err := cryptox.DecryptFileTo(tmp, out, key); err != nil {
		_ = filex.RemoveIfExists(out)
		return err
	}
	return nil
}
