package binary

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
)

// Engine is the server-side half of the Binary Engine: it owns the
// storage root and drives the save/delete flow against an access.Client.
type Engine struct {
	db  *access.Client
	cfg Config
}

// NewEngine builds an Engine rooted at cfg.Root.
func NewEngine(db *access.Client, cfg Config) *Engine {
	return &Engine{db: db, cfg: cfg}
}

// SaveInput describes one incoming blob to persist's
// server-side save flow.
type SaveInput struct {
	UID         string // empty: a new uid is minted
	Table       string
	TableUID    string
	Filename    string
	MimeType    string
	Description string
	Contents    io.Reader
}

// Save buffers contents to a temporary path under the storage root,
// checksums it, upserts the BinaryMeta row in one transaction, and only
// then moves the temp file into its derived final path
// steps 1-4.
func (e *Engine) Save(ctx context.Context, in SaveInput) (model.BinaryMeta, error) {
	if err := os.MkdirAll(e.cfg.Root, 0o755); err != nil {
		return model.BinaryMeta{}, model.NewBackendError("binary.save.mkdir", err)
	}

	tmp, err := os.CreateTemp(e.cfg.Root, ".binary_upload_*.tmp")
	if err != nil {
		return model.BinaryMeta{}, model.NewBackendError("binary.save.tempfile", err)
	}
	tmpPath := tmp.Name()

	hasher := e.cfg.hashFactory()()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), in.Contents)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return model.BinaryMeta{}, model.NewBackendError("binary.save.write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return model.BinaryMeta{}, model.NewBackendError("binary.save.close", err)
	}

	checksum := fmtChecksum(hasher)

	uid := in.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	now := time.Now().UTC()
	ext := filepath.Ext(in.Filename)
	finalPath := filepath.Join(e.cfg.Root, derivePath(e.cfg.pattern(), in.Table, in.TableUID, uid, ext, now))

	meta := model.BinaryMeta{
		UID:            uid,
		TableName:      in.Table,
		TableUID:       in.TableUID,
		Checksum:       checksum,
		Size:           size,
		ModificationTS: now,
		MimeType:       in.MimeType,
		Filename:       in.Filename,
		Description:    in.Description,
		Path:           finalPath,
	}

	txErr := e.db.Transaction(ctx, 30*time.Second, func(tx *access.Client, done func(error)) error {
		existing, err := tx.GetByPk(ctx, TableBinaryMeta, model.Record{"uid": uid}, nil)
		if err != nil {
			done(err)
			return err
		}
		if existing == nil {
			meta.CreationTS = now
			_, err = tx.Insert(ctx, TableBinaryMeta, binaryMetaToRecord(meta))
		} else {
			if ts, ok := asTime(existing["creation_ts"]); ok {
				meta.CreationTS = ts
			} else {
				meta.CreationTS = now
			}
			_, err = tx.Update(ctx, TableBinaryMeta, binaryMetaToRecord(meta))
		}
		done(err)
		return err
	})
	if txErr != nil {
		os.Remove(tmpPath)
		return model.BinaryMeta{}, txErr
	}

	// The metadata row is already committed; a failure here is surfaced
	// to the caller with the temp file left in place so an operator can
	// reconcile it against the row's recorded path.
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return model.BinaryMeta{}, model.NewBackendError("binary.save.mkdirfinal", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return model.BinaryMeta{}, model.NewBackendError("binary.save.move", err)
	}

	return meta, nil
}

// Delete removes a BinaryMeta row and its backing file.
func (e *Engine) Delete(ctx context.Context, uid string) error {
	existing, err := e.db.GetByPk(ctx, TableBinaryMeta, model.Record{"uid": uid}, nil)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if err := e.db.Remove(ctx, TableBinaryMeta, model.Record{"uid": uid}); err != nil {
		return err
	}
	path, _ := existing["path"].(string)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return model.NewBackendError("binary.delete.removefile", err)
	}
	return nil
}

// Open returns a reader over a blob's current content, for a download or
// a checksum re-verification pass.
func (e *Engine) Open(ctx context.Context, uid string) (io.ReadCloser, model.BinaryMeta, error) {
	row, err := e.db.GetByPk(ctx, TableBinaryMeta, model.Record{"uid": uid}, nil)
	if err != nil {
		return nil, model.BinaryMeta{}, err
	}
	if row == nil {
		return nil, model.BinaryMeta{}, model.NewNotFoundError(TableBinaryMeta, uid)
	}
	meta := recordToBinaryMeta(row)
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, model.BinaryMeta{}, model.NewBackendError("binary.open", err)
	}
	return f, meta, nil
}

func binaryMetaToRecord(m model.BinaryMeta) model.Record {
	return model.Record{
		"uid":             m.UID,
		"table_name":      m.TableName,
		"table_uid":       m.TableUID,
		"checksum":        m.Checksum,
		"size":            m.Size,
		"creation_ts":     m.CreationTS,
		"modification_ts": m.ModificationTS,
		"mime_type":       m.MimeType,
		"filename":        m.Filename,
		"description":     m.Description,
		"path":            m.Path,
	}
}

func recordToBinaryMeta(r model.Record) model.BinaryMeta {
	m := model.BinaryMeta{}
	m.UID, _ = r["uid"].(string)
	m.TableName, _ = r["table_name"].(string)
	m.TableUID, _ = r["table_uid"].(string)
	m.Checksum, _ = r["checksum"].(string)
	m.MimeType, _ = r["mime_type"].(string)
	m.Filename, _ = r["filename"].(string)
	m.Description, _ = r["description"].(string)
	m.Path, _ = r["path"].(string)
	switch v := r["size"].(type) {
	case int64:
		m.Size = v
	case int:
		m.Size = int64(v)
	}
	if ts, ok := asTime(r["creation_ts"]); ok {
		m.CreationTS = ts
	}
	if ts, ok := asTime(r["modification_ts"]); ok {
		m.ModificationTS = ts
	}
	return m
}
