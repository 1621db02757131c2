// Package store persists device records and the server master key. It is
// pure data access: one JSON record file, rewritten wholesale on every
// mutation, consistent only within the owning process.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// MasterClientID is the client id recorded for requests authenticated with
// the master key.
const MasterClientID = "master"

type recordFile struct {
	MasterKeyHash string                    `json:"master_key_hash"`
	Devices       map[string]*models.Device `json:"devices"`
}

type Store struct {
	path string

	mu   sync.Mutex
	data recordFile

	// Plaintext master key confirmed against the hash, so chunk-rate
	// requests don't pay a bcrypt comparison per call.
	vmu      sync.RWMutex
	verified string
}

// Open loads the record store at path, creating it if missing. When no
// master key has been provisioned yet a fresh one is generated and its
// plaintext returned exactly once; callers must surface it to the operator.
func Open(path string) (*Store, string, error) {
	s := &Store{
		path: path,
		data: recordFile{Devices: make(map[string]*models.Device)},
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, "", apperr.Internal(err, "corrupt record store %s", path)
		}
		if s.data.Devices == nil {
			s.data.Devices = make(map[string]*models.Device)
		}
	case os.IsNotExist(err):
		// First run, persisted below.
	default:
		return nil, "", apperr.Internal(err, "cannot read record store %s", path)
	}

	var issued string
	if s.data.MasterKeyHash == "" {
		issued = uuid.NewString()
		hash, err := bcrypt.GenerateFromPassword([]byte(issued), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", apperr.Internal(err, "cannot hash master key")
		}
		s.data.MasterKeyHash = string(hash)
		s.vmu.Lock()
		s.verified = issued
		s.vmu.Unlock()
	}

	s.mu.Lock()
	err = s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	return s, issued, nil
}

// VerifyMasterKey reports whether key is the server master key.
func (s *Store) VerifyMasterKey(key string) bool {
	if key == "" {
		return false
	}
	s.vmu.RLock()
	cached := s.verified
	s.vmu.RUnlock()
	if cached != "" {
		return key == cached
	}
	s.mu.Lock()
	hash := s.data.MasterKeyHash
	s.mu.Unlock()
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
		return false
	}
	s.vmu.Lock()
	s.verified = key
	s.vmu.Unlock()
	return true
}

// LookupByKey finds the device holding an issued API key.
func (s *Store) LookupByKey(key string) (models.Device, bool) {
	if key == "" {
		return models.Device{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.data.Devices {
		if d.APIKey != "" && d.APIKey == key {
			return *d, true
		}
	}
	return models.Device{}, false
}

// Get returns a device by id.
func (s *Store) Get(deviceID string) (models.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Devices[deviceID]
	if !ok {
		return models.Device{}, false
	}
	return *d, true
}

// Register creates a device record, unapproved and without a key. It is
// idempotent on device id: re-registering a known device updates its
// mutable fields without touching approval state or the issued key.
func (s *Store) Register(deviceID, name, fingerprint, platform, version, ip string) (models.Device, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Devices[deviceID]
	if !ok {
		d = &models.Device{
			DeviceID:  deviceID,
			CreatedAt: time.Now().UTC(),
		}
		s.data.Devices[deviceID] = d
	}
	d.DeviceName = name
	d.Fingerprint = fingerprint
	d.Platform = platform
	d.ClientVersion = version
	d.CurrentIP = ip
	d.LastSeen = time.Now().UTC()

	if err := s.persistLocked(); err != nil {
		return models.Device{}, err
	}
	return *d, nil
}

// Approve promotes a device and assigns a freshly issued key. A key is
// never reused; approving twice rotates it.
func (s *Store) Approve(deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Devices[deviceID]
	if !ok {
		return "", apperr.NotFound("unknown device %s", deviceID)
	}
	// Key and approval flag always change together so the persisted
	// snapshot can never show an approved device without a key.
	d.APIKey = uuid.NewString()
	d.IsApproved = true

	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return d.APIKey, nil
}

// Revoke deletes a device record entirely.
func (s *Store) Revoke(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Devices[deviceID]; !ok {
		return apperr.NotFound("unknown device %s", deviceID)
	}
	delete(s.data.Devices, deviceID)
	return s.persistLocked()
}

// Touch updates liveness fields for an authenticated device.
func (s *Store) Touch(deviceID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Devices[deviceID]
	if !ok {
		return apperr.NotFound("unknown device %s", deviceID)
	}
	d.CurrentIP = ip
	d.LastSeen = time.Now().UTC()
	return s.persistLocked()
}

// ListAll returns a snapshot of every device record.
func (s *Store) ListAll() []models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Device, 0, len(s.data.Devices))
	for _, d := range s.data.Devices {
		out = append(out, *d)
	}
	return out
}

// persistLocked rewrites the backing file from the current snapshot. The
// temp-file-then-rename dance keeps the on-disk record consistent even if
// the process dies mid-write.
func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return apperr.Internal(err, "cannot encode record store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return apperr.Internal(err, "cannot create data directory")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return apperr.Internal(err, "cannot write record store")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apperr.Internal(err, "cannot replace record store")
	}
	return nil
}
