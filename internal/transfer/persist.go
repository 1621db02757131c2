package transfer

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

func (e *Engine) partPath(id string) string {
	return filepath.Join(e.uploadDir, id+".part")
}

func (e *Engine) metaPath(kind models.TransferKind, id string) string {
	dir := e.downloadDir
	if kind == models.TransferUpload {
		dir = e.uploadDir
	}
	return filepath.Join(dir, id+".meta")
}

// writeMeta persists a session descriptor. Called right after creation and
// again on completion/cancellation.
func (e *Engine) writeMeta(meta models.TransferSession) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.Internal(err, "cannot encode session descriptor")
	}
	path := e.metaPath(meta.Kind, meta.TransferID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return apperr.Internal(err, "cannot write session descriptor")
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Internal(err, "cannot replace session descriptor")
	}
	return nil
}

// RestoreSessions rebuilds the in-memory session table from descriptors
// left by a previous process. Only active sessions come back; completed
// and cancelled descriptors stay on disk for the sweep. Returns how many
// sessions were restored.
func (e *Engine) RestoreSessions() (int, error) {
	restored := 0

	for _, dir := range []string{e.uploadDir, e.downloadDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return restored, apperr.Internal(err, "cannot read session directory %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				log.Printf("Transfer: skipping unreadable descriptor %s: %v", entry.Name(), err)
				continue
			}
			var meta models.TransferSession
			if err := json.Unmarshal(raw, &meta); err != nil {
				log.Printf("Transfer: skipping corrupt descriptor %s: %v", entry.Name(), err)
				continue
			}
			if meta.Status != models.TransferActive && meta.Status != models.TransferPaused {
				continue
			}
			if e.restoreOne(meta) {
				restored++
			}
		}
	}
	return restored, nil
}

func (e *Engine) restoreOne(meta models.TransferSession) bool {
	switch meta.Kind {
	case models.TransferUpload:
		part, err := os.OpenFile(e.partPath(meta.TransferID), os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			log.Printf("Transfer: cannot reopen partial for %s: %v", meta.TransferID, err)
			return false
		}
		info, err := part.Stat()
		if err != nil {
			part.Close()
			return false
		}
		// Only the contiguous prefix was ever flushed, so the partial's
		// size is exactly the resume point.
		meta.BytesTransferred = info.Size()
		e.mu.Lock()
		e.uploads[meta.TransferID] = &uploadSession{
			meta:    meta,
			file:    part,
			pending: make(map[int64][]byte),
		}
		e.mu.Unlock()
		return true

	case models.TransferDownload:
		e.mu.Lock()
		e.downloads[meta.TransferID] = &downloadSession{meta: meta}
		e.mu.Unlock()
		return true

	default:
		log.Printf("Transfer: skipping descriptor %s with unknown kind %q", meta.TransferID, meta.Kind)
		return false
	}
}

// SweepStale removes sessions older than the retention window regardless
// of status, along with their descriptor and partial files. Returns how
// many sessions were reaped.
func (e *Engine) SweepStale() int {
	cutoff := time.Now().Add(-e.retention)
	reaped := 0

	// CreatedAt is immutable, so the age check needs only e.mu; file
	// handles belong to the session lock and are closed afterwards.
	e.mu.Lock()
	var stale []*uploadSession
	for id, s := range e.uploads {
		if s.meta.CreatedAt.Before(cutoff) {
			stale = append(stale, s)
			delete(e.uploads, id)
			reaped++
		}
	}
	for id, s := range e.downloads {
		if s.meta.CreatedAt.Before(cutoff) {
			delete(e.downloads, id)
			reaped++
		}
	}
	e.mu.Unlock()

	for _, s := range stale {
		s.mu.Lock()
		if s.file != nil {
			s.file.Close()
			s.file = nil
		}
		s.mu.Unlock()
	}

	// On-disk leftovers, including descriptors from retired sessions.
	for _, dir := range []string{e.uploadDir, e.downloadDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			name := entry.Name()
			if !strings.HasSuffix(name, ".meta") && !strings.HasSuffix(name, ".part") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimSuffix(name, ".meta"), ".part")
			e.mu.Lock()
			_, liveUp := e.uploads[id]
			_, liveDl := e.downloads[id]
			e.mu.Unlock()
			if liveUp || liveDl {
				continue
			}
			os.Remove(filepath.Join(dir, name))
		}
	}
	return reaped
}
