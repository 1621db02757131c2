// Package transfer manages resumable chunked upload and download sessions
// against the filesystem. Each session persists a {id}.meta descriptor
// (plus a {id}.part partial for uploads) so an interrupted process can
// rebuild its session table on restart.
package transfer

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// PathValidator confines transfer targets to the allowed roots. Implemented
// by pathval.Validator.
type PathValidator interface {
	ResolveDir(path string) (string, error)
	ResolveFile(path string) (string, error)
}

const DefaultRetention = 7 * 24 * time.Hour

type Engine struct {
	validator   PathValidator
	uploadDir   string // descriptor + partial files for uploads
	downloadDir string // descriptor files for downloads
	retention   time.Duration

	mu        sync.Mutex // guards both session maps
	uploads   map[string]*uploadSession
	downloads map[string]*downloadSession
}

// uploadSession holds the in-memory side of one upload. Chunk submissions
// for the same session serialize on mu; different sessions run in parallel.
type uploadSession struct {
	mu      sync.Mutex
	meta    models.TransferSession
	file    *os.File
	pending map[int64][]byte // buffered out-of-order chunks, keyed by offset
}

type downloadSession struct {
	mu   sync.Mutex
	meta models.TransferSession
}

func NewEngine(validator PathValidator, sessionDir string, retention time.Duration) (*Engine, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	e := &Engine{
		validator:   validator,
		uploadDir:   filepath.Join(sessionDir, "uploads"),
		downloadDir: filepath.Join(sessionDir, "downloads"),
		retention:   retention,
		uploads:     make(map[string]*uploadSession),
		downloads:   make(map[string]*downloadSession),
	}
	for _, dir := range []string{e.uploadDir, e.downloadDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperr.Internal(err, "cannot create session directory %s", dir)
		}
	}
	return e, nil
}

// Status returns a progress snapshot of a session in either direction.
// Master credentials may inspect any session; everyone else only their own.
func (e *Engine) Status(clientID string, isMaster bool, transferID string) (models.TransferSession, error) {
	// Session pointers are copied out before locking them; e.mu is never
	// held while a session lock is taken.
	e.mu.Lock()
	up, upOK := e.uploads[transferID]
	dl, dlOK := e.downloads[transferID]
	e.mu.Unlock()

	if upOK {
		up.mu.Lock()
		meta := up.meta
		up.mu.Unlock()
		if meta.ClientID == clientID || isMaster {
			return meta, nil
		}
	}
	if dlOK {
		dl.mu.Lock()
		meta := dl.meta
		dl.mu.Unlock()
		if meta.ClientID == clientID || isMaster {
			return meta, nil
		}
	}
	return models.TransferSession{}, apperr.NotFound("unknown transfer %s", transferID)
}

// ListAll returns every live session, both directions. Administrative.
func (e *Engine) ListAll() []models.TransferSession {
	e.mu.Lock()
	ups := make([]*uploadSession, 0, len(e.uploads))
	for _, up := range e.uploads {
		ups = append(ups, up)
	}
	dls := make([]*downloadSession, 0, len(e.downloads))
	for _, dl := range e.downloads {
		dls = append(dls, dl)
	}
	e.mu.Unlock()

	out := make([]models.TransferSession, 0, len(ups)+len(dls))
	for _, up := range ups {
		up.mu.Lock()
		out = append(out, up.meta)
		up.mu.Unlock()
	}
	for _, dl := range dls {
		dl.mu.Lock()
		out = append(out, dl.meta)
		dl.mu.Unlock()
	}
	return out
}

// lookupUpload fetches a session with the ownership check applied. A
// session owned by someone else is indistinguishable from a missing one.
func (e *Engine) lookupUpload(clientID, transferID string) (*uploadSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.uploads[transferID]
	if !ok || s.meta.ClientID != clientID {
		return nil, apperr.NotFound("unknown upload %s", transferID)
	}
	return s, nil
}

func (e *Engine) lookupDownload(clientID, transferID string) (*downloadSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.downloads[transferID]
	if !ok || s.meta.ClientID != clientID {
		return nil, apperr.NotFound("unknown download %s", transferID)
	}
	return s, nil
}
