package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/cryptox"
	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/dmitrijs2005/securexfer/internal/storage"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

func (ss *session) handleUpload(ctx context.Context, req wire.Envelope) error {
	filename := req.String(wire.KeyFilename)
	size, ok := req.Int64(wire.KeyFileSize)
	if filename == "" || !ok || size < 0 {
		return ss.fail(common.ErrMalformedMessage, "Missing filename or file_size")
	}
	clientSum := req.String(wire.KeyChecksum)
	name := filex.SanitizeName(filename)

	staging := filex.StagingPath(ss.srv.cfg.UploadDir, name)
	f, err := os.Create(staging)
	if err != nil {
		return ss.fail(fmt.Errorf("%w: %v", common.ErrFilesystem, err), "Error receiving file")
	}

	if err := ss.reply(wire.NewReady()); err != nil {
		_ = f.Close()
		_ = filex.RemoveIfExists(staging)
		return err
	}

	received, rerr := ss.tr.RecvRaw(f, size)
	cerr := f.Close()
	ss.srv.observer.BytesTransferred(DirectionIn, received)
	if rerr != nil || received != size {
		_ = filex.RemoveIfExists(staging)
		ss.log.Warn(ctx, "incomplete upload", "file", name, "received", received, "expected", size, "error", rerr)
		_ = ss.reply(wire.NewError("Incomplete file transfer"))
		return fmt.Errorf("%w: %d of %d bytes: %w", common.ErrIncompleteTransfer, received, size, errStreamBroken)
	}
	if cerr != nil {
		_ = filex.RemoveIfExists(staging)
		return ss.fail(fmt.Errorf("%w: %v", common.ErrFilesystem, cerr), "Error receiving file")
	}

	sum, err := filex.Checksum(staging)
	if err != nil {
		_ = filex.RemoveIfExists(staging)
		return ss.fail(err, "Error receiving file")
	}
	if clientSum != "" && clientSum != sum {
		ss.log.Warn(ctx, "upload checksum mismatch", "file", name, "client", clientSum, "server", sum)
		ss.srv.observer.ChecksumMismatch(CheckpointPostReceive)
	}

	if ss.srv.backend == nil {
		return ss.keepLocal(ctx, staging, name, sum)
	}
	return ss.pushRemote(ctx, staging, name, size, sum)
}

// keepLocal finishes an upload when remote storage is disabled.
func (ss *session) keepLocal(ctx context.Context, staging, name, sum string) error {
	dest := filepath.Join(ss.srv.cfg.UploadDir, name)
	if err := os.Rename(staging, dest); err != nil {
		_ = filex.RemoveIfExists(staging)
		return ss.fail(fmt.Errorf("%w: %v", common.ErrFilesystem, err), "Error storing file")
	}
	ss.log.Info(ctx, "file stored locally", "path", dest)
	return ss.reply(wire.Envelope{
		wire.KeyStatus:   wire.StatusSuccess,
		wire.KeyMessage:  "File uploaded to server",
		wire.KeyChecksum: sum,
	})
}

func (ss *session) pushRemote(ctx context.Context, staging, name string, size int64, sum string) error {
	encPath := ""
	cleanup := func() {
		_ = filex.RemoveIfExists(staging)
		_ = filex.RemoveIfExists(encPath)
	}

	key, err := cryptox.NewKey()
	if err != nil {
		cleanup()
		return ss.fail(err, "Error uploading to remote storage: "+err.Error())
	}
	encPath, err = cryptox.EncryptFile(staging, key)
	if err != nil {
		cleanup()
		return ss.fail(err, "Error uploading to remote storage: "+err.Error())
	}

	id, err := ss.srv.backend.Upload(ctx, encPath, name+common.EncryptedSuffix)
	cleanup()
	if err != nil {
		err = fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
		return ss.fail(err, "Error uploading to remote storage: "+err.Error())
	}

	if rec, ok := ss.srv.backend.(storage.Recorder); ok {
		err := rec.RecordUpload(ctx, storage.FileRecord{
			ID:          id,
			Name:        name + common.EncryptedSuffix,
			Size:        size,
			Checksum:    sum,
			CreatedTime: time.Now().UTC(),
		})
		if err != nil {
			ss.log.Warn(ctx, "failed to record upload", "id", id, "error", err)
		}
	}

	ss.log.Info(ctx, "file uploaded", "id", id, "size", size)
	return ss.reply(wire.Envelope{
		wire.KeyStatus:   wire.StatusSuccess,
		wire.KeyMessage:  "File uploaded to remote storage",
		wire.KeyFileID:   id,
		wire.KeyKey:      cryptox.KeyHex(key),
		wire.KeyChecksum: sum,
	})
}

func (ss *session) handleDownload(ctx context.Context, req wire.Envelope) error {
	id := req.String(wire.KeyFileID)
	if id == "" {
		return ss.fail(common.ErrMalformedMessage, "Missing gdrive_file_id")
	}
	if hexKey := req.String(wire.KeyKey); hexKey != "" {
		if _, err := cryptox.ParseHexKey(hexKey); err != nil {
			return ss.fail(err, "Invalid encryption key format: "+err.Error())
		}
	}
	expected := req.String(wire.KeyChecksum)

	if ss.srv.backend == nil {
		return ss.fail(common.ErrStorageDisabled, "Remote storage integration not enabled")
	}

	tmp := filex.StagingPath(ss.srv.cfg.UploadDir, "download")
	defer func() { _ = filex.RemoveIfExists(tmp) }()
	abort := func(cause error, msg string) error {
		_ = filex.RemoveIfExists(tmp)
		return ss.fail(cause, msg)
	}

	name, err := ss.srv.backend.Download(ctx, id, tmp)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return abort(err, "File not found")
		}
		return abort(fmt.Errorf("%w: %v", common.ErrStorageBackend, err), "Error downloading from remote storage")
	}

	sum, err := filex.Checksum(tmp)
	if err != nil {
		return abort(err, "Error downloading from remote storage")
	}
	if expected != "" && expected != sum {
		ss.log.Warn(ctx, "download checksum mismatch", "id", id, "expected", expected, "actual", sum)
		ss.srv.observer.ChecksumMismatch(CheckpointPreTransfer)
		return abort(common.ErrChecksumMismatch, "Checksum mismatch")
	}
	size, err := filex.Size(tmp)
	if err != nil {
		return abort(err, "Error downloading from remote storage")
	}

	f, err := os.Open(tmp)
	if err != nil {
		return abort(fmt.Errorf("%w: %v", common.ErrFilesystem, err), "Error downloading from remote storage")
	}

	ready := wire.NewReady()
	ready[wire.KeyFileSize] = size
	ready[wire.KeyFilename] = name
	ready[wire.KeyChecksum] = sum
	if err := ss.reply(ready); err != nil {
		_ = f.Close()
		return err
	}

	sent, err := ss.tr.SendRaw(f, size)
	_ = f.Close()
	_ = filex.RemoveIfExists(tmp)
	ss.srv.observer.BytesTransferred(DirectionOut, sent)
	if err != nil {
		return fmt.Errorf("stream %s: %w: %w", id, err, errStreamBroken)
	}

	final := wire.Envelope{
		wire.KeyStatus:  wire.StatusSuccess,
		wire.KeyMessage: "File downloaded successfully",
	}
	if rec, ok := ss.srv.backend.(storage.Recorder); ok {
		if err := rec.RecordDownload(ctx, id, sum); err != nil {
			ss.log.Warn(ctx, "failed to record download", "id", id, "error", err)
		}
		if st, err := rec.Stat(ctx, id); err == nil && st.Checksum != "" {
			final[wire.KeyChecksum] = st.Checksum
		}
	}

	ss.log.Info(ctx, "file downloaded", "id", id, "size", size)
	return ss.reply(final)
}

func (ss *session) handleList(ctx context.Context) error {
	if ss.srv.backend == nil {
		return ss.fail(common.ErrStorageDisabled, "Remote storage integration not enabled")
	}

	recs, err := ss.srv.backend.List(ctx)
	if err != nil {
		return ss.fail(fmt.Errorf("%w: %v", common.ErrStorageBackend, err), "Error listing files")
	}

	files := make([]wire.FileInfo, 0, len(recs))
	for _, r := range recs {
		files = append(files, wire.FileInfo{
			ID:          r.ID,
			Name:        r.Name,
			MimeType:    r.MimeType,
			CreatedTime: r.CreatedTime.UTC().Format(time.RFC3339),
		})
	}
	return ss.reply(wire.Envelope{
		wire.KeyStatus: wire.StatusSuccess,
		wire.KeyFiles:  files,
	})
}

// fail sends an error reply and returns cause. A failed reply wins, since it
// ends the session.
func (ss *session) fail(cause error, msg string) error {
	if err := ss.reply(wire.NewError(msg)); err != nil {
		return err
	}
	return cause
}
