package transfer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// InitiateDownload opens a download session against an existing file,
// snapshotting its size and modification time so later reads can detect
// the file changing underneath the session.
func (e *Engine) InitiateDownload(clientID, filePath string) (models.TransferSession, error) {
	src, err := e.validator.ResolveFile(filePath)
	if err != nil {
		return models.TransferSession{}, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return models.TransferSession{}, apperr.Internal(err, "cannot stat %s", filePath)
	}

	s := &downloadSession{
		meta: models.TransferSession{
			TransferID:    uuid.NewString(),
			ClientID:      clientID,
			Kind:          models.TransferDownload,
			FileName:      filepath.Base(src),
			FileSize:      info.Size(),
			Status:        models.TransferActive,
			CreatedAt:     time.Now().UTC(),
			SourcePath:    src,
			SourceModTime: info.ModTime().UTC(),
		},
	}
	if err := e.writeMeta(s.meta); err != nil {
		return models.TransferSession{}, err
	}

	e.mu.Lock()
	e.downloads[s.meta.TransferID] = s
	e.mu.Unlock()
	return s.meta, nil
}

// ReadChunk serves the inclusive byte range [start, end]. Before serving it
// re-stats the source and fails the whole session with a conflict if size
// or mtime moved since initiation; stale bytes are never served. Progress
// advances optimistically to end+1, it exists for UI display only.
func (e *Engine) ReadChunk(clientID, transferID string, start, end int64) ([]byte, models.TransferSession, error) {
	s, err := e.lookupDownload(clientID, transferID)
	if err != nil {
		return nil, models.TransferSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.Status != models.TransferActive {
		return nil, s.meta, apperr.Conflict("download %s is %s", transferID, s.meta.Status)
	}
	if start < 0 || end < start || start >= s.meta.FileSize {
		return nil, s.meta, apperr.Validation("invalid byte range %d-%d for size %d", start, end, s.meta.FileSize)
	}
	if end >= s.meta.FileSize {
		end = s.meta.FileSize - 1
	}

	info, err := os.Stat(s.meta.SourcePath)
	if err != nil || info.Size() != s.meta.FileSize || !info.ModTime().UTC().Equal(s.meta.SourceModTime) {
		e.failDownload(s)
		return nil, s.meta, apperr.Conflict("source file changed during download: %s", s.meta.FileName)
	}

	f, err := os.Open(s.meta.SourcePath)
	if err != nil {
		return nil, s.meta, apperr.Internal(err, "cannot open %s", s.meta.FileName)
	}
	defer f.Close()

	buf := make([]byte, end-start+1)
	if _, err := f.ReadAt(buf, start); err != nil {
		return nil, s.meta, apperr.Internal(err, "cannot read %s", s.meta.FileName)
	}

	if end+1 > s.meta.BytesTransferred {
		s.meta.BytesTransferred = end + 1
	}
	return buf, s.meta, nil
}

// CancelDownload retires a download session. Idempotent.
func (e *Engine) CancelDownload(clientID, transferID string) error {
	e.mu.Lock()
	s, ok := e.downloads[transferID]
	if ok && s.meta.ClientID != clientID {
		e.mu.Unlock()
		return apperr.NotFound("unknown download %s", transferID)
	}
	delete(e.downloads, transferID)
	e.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Status = models.TransferCancelled
	return e.writeMeta(s.meta)
}

// failDownload marks the session cancelled after a source conflict. Caller
// holds s.mu.
func (e *Engine) failDownload(s *downloadSession) {
	s.meta.Status = models.TransferCancelled
	e.writeMeta(s.meta)
	e.mu.Lock()
	delete(e.downloads, s.meta.TransferID)
	e.mu.Unlock()
}
