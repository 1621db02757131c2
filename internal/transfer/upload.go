package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// InitiateUpload opens a new upload session. Filename conflicts are
// resolved per policy; re-initiating an in-progress upload for the same
// client and resolved target returns the existing session instead of a
// duplicate, so a client can retry after a dropped connection.
func (e *Engine) InitiateUpload(clientID, destDir, fileName string, declaredSize int64, policy models.ConflictPolicy) (models.TransferSession, error) {
	dir, err := e.validator.ResolveDir(destDir)
	if err != nil {
		return models.TransferSession{}, err
	}
	name := filepath.Base(fileName)
	if name == "" || name == "." || name == string(os.PathSeparator) || name != fileName {
		return models.TransferSession{}, apperr.Validation("invalid file name %q", fileName)
	}
	if declaredSize < 0 {
		return models.TransferSession{}, apperr.Validation("file_size cannot be negative")
	}

	switch policy {
	case "":
		policy = models.ConflictAbort
	case models.ConflictAbort, models.ConflictOverwrite, models.ConflictKeepBoth:
	default:
		return models.TransferSession{}, apperr.Validation("unknown conflict_resolution %q", policy)
	}
	finalName, err := resolveConflict(dir, name, policy)
	if err != nil {
		return models.TransferSession{}, err
	}
	target := filepath.Join(dir, finalName)

	// ClientID and FinalPath never change after creation, so the scan can
	// match on them under e.mu alone; status and progress belong to the
	// session lock, which is never taken while e.mu is held.
	e.mu.Lock()
	var candidates []*uploadSession
	for _, s := range e.uploads {
		if s.meta.ClientID == clientID && s.meta.FinalPath == target {
			candidates = append(candidates, s)
		}
	}
	e.mu.Unlock()
	for _, s := range candidates {
		s.mu.Lock()
		meta := s.meta
		s.mu.Unlock()
		if meta.Status == models.TransferActive {
			return meta, nil
		}
	}

	id := uuid.NewString()
	part, err := os.OpenFile(e.partPath(id), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return models.TransferSession{}, apperr.Internal(err, "cannot create partial file")
	}

	s := &uploadSession{
		meta: models.TransferSession{
			TransferID:     id,
			ClientID:       clientID,
			Kind:           models.TransferUpload,
			FileName:       finalName,
			FileSize:       declaredSize,
			Status:         models.TransferActive,
			CreatedAt:      time.Now().UTC(),
			FinalPath:      target,
			ConflictPolicy: policy,
		},
		file:    part,
		pending: make(map[int64][]byte),
	}
	if err := e.writeMeta(s.meta); err != nil {
		part.Close()
		os.Remove(e.partPath(id))
		return models.TransferSession{}, err
	}
	e.mu.Lock()
	e.uploads[id] = s
	e.mu.Unlock()
	return s.meta, nil
}

// WriteChunk accepts one byte-range slice at the given offset. Chunks may
// arrive in any order: they are buffered by offset and only the longest
// contiguous run starting at the flushed prefix is written to disk, so a
// gap is never written into the file. Chunks at or below the flushed
// prefix are accepted and ignored, making retries duplicate-safe.
// It returns the bytes flushed by this call and the next expected offset.
func (e *Engine) WriteChunk(clientID, transferID string, offset int64, data []byte) (int64, int64, error) {
	if offset < 0 {
		return 0, 0, apperr.Validation("offset cannot be negative")
	}
	s, err := e.lookupUpload(clientID, transferID)
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.Status != models.TransferActive {
		return 0, s.meta.BytesTransferred, apperr.Conflict("upload %s is %s", transferID, s.meta.Status)
	}
	if s.file == nil {
		return 0, s.meta.BytesTransferred, apperr.Conflict("upload %s is finalizing", transferID)
	}
	if s.meta.FileSize > 0 && offset+int64(len(data)) > s.meta.FileSize {
		return 0, s.meta.BytesTransferred, apperr.Validation("chunk exceeds declared file size")
	}

	written := s.meta.BytesTransferred
	end := offset + int64(len(data))
	if end > written {
		if offset < written {
			// Overlaps the flushed prefix; keep only the unwritten tail.
			data = data[written-offset:]
			offset = written
		}
		// The request body is reused by the server; buffered chunks must own
		// their bytes.
		buf := make([]byte, len(data))
		copy(buf, data)
		s.pending[offset] = buf
	}

	flushed, err := s.flushLocked()
	if err != nil {
		return 0, s.meta.BytesTransferred, err
	}
	return flushed, s.meta.BytesTransferred, nil
}

// flushLocked drains every buffered chunk that touches the contiguous
// prefix. Caller holds s.mu.
func (s *uploadSession) flushLocked() (int64, error) {
	var flushed int64
	for {
		advanced := false
		for off, buf := range s.pending {
			if off > s.meta.BytesTransferred {
				continue
			}
			delete(s.pending, off)
			if off+int64(len(buf)) <= s.meta.BytesTransferred {
				continue // fully covered by a prior flush
			}
			buf = buf[s.meta.BytesTransferred-off:]
			if _, err := s.file.WriteAt(buf, s.meta.BytesTransferred); err != nil {
				return flushed, apperr.Internal(err, "cannot write partial file")
			}
			s.meta.BytesTransferred += int64(len(buf))
			flushed += int64(len(buf))
			advanced = true
		}
		if !advanced {
			return flushed, nil
		}
	}
}

// CompleteUpload verifies the file is whole, moves the partial into place
// atomically and retires the session.
func (e *Engine) CompleteUpload(clientID, transferID string) (string, error) {
	s, err := e.lookupUpload(clientID, transferID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A retried Complete that raced a successful one finds the session
	// already retired and must not touch the closed file.
	if s.meta.Status != models.TransferActive {
		return "", apperr.Conflict("upload %s is %s", transferID, s.meta.Status)
	}
	if len(s.pending) > 0 {
		return "", apperr.Validation("upload incomplete: gap open at offset %d", s.meta.BytesTransferred)
	}
	if s.meta.FileSize > 0 && s.meta.BytesTransferred != s.meta.FileSize {
		return "", apperr.Validation("upload incomplete: %d of %d bytes received", s.meta.BytesTransferred, s.meta.FileSize)
	}

	// The file may already be closed when a prior Complete failed after
	// closing (for example on rename); the retry then goes straight to the
	// rename.
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return "", apperr.Internal(err, "cannot sync partial file")
		}
		if err := s.file.Close(); err != nil {
			s.file = nil
			return "", apperr.Internal(err, "cannot close partial file")
		}
		s.file = nil
	}
	if s.meta.ConflictPolicy == models.ConflictOverwrite {
		os.Remove(s.meta.FinalPath)
	}
	if err := os.Rename(e.partPath(transferID), s.meta.FinalPath); err != nil {
		return "", apperr.Internal(err, "cannot move upload into place")
	}

	s.meta.Status = models.TransferCompleted
	if err := e.writeMeta(s.meta); err != nil {
		return "", err
	}

	e.mu.Lock()
	delete(e.uploads, transferID)
	e.mu.Unlock()
	return s.meta.FinalPath, nil
}

// CancelUpload drops the session and its partial file. Cancelling an
// unknown or already-cancelled upload succeeds.
func (e *Engine) CancelUpload(clientID, transferID string) error {
	e.mu.Lock()
	s, ok := e.uploads[transferID]
	if ok && s.meta.ClientID != clientID {
		e.mu.Unlock()
		return apperr.NotFound("unknown upload %s", transferID)
	}
	delete(e.uploads, transferID)
	e.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	os.Remove(e.partPath(transferID))
	s.meta.Status = models.TransferCancelled
	s.pending = nil
	return e.writeMeta(s.meta)
}

// resolveConflict applies the conflict policy against what is on disk and
// returns the file name to use.
func resolveConflict(dir, name string, policy models.ConflictPolicy) (string, error) {
	exists := func(n string) bool {
		_, err := os.Stat(filepath.Join(dir, n))
		return err == nil
	}
	if !exists(name) {
		return name, nil
	}
	switch policy {
	case models.ConflictAbort:
		return "", apperr.Conflict("file already exists: %s", name)
	case models.ConflictOverwrite:
		return name, nil
	case models.ConflictKeepBoth:
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
			if !exists(candidate) {
				return candidate, nil
			}
		}
	default:
		return "", apperr.Validation("unknown conflict_resolution %q", policy)
	}
}
