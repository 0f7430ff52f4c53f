// Package imagestore implements the bounded in-memory Image Store (spec.md
// §4.2): raw pixel buffers keyed by opaque ID, with byte-accounted LRU
// eviction. It is the image-buffer analogue of the teacher's
// internal/services/cache MemoryCache, adapted from opaque JSON-blob
// entries to vision.Image buffers with dimension/channel accounting.
package imagestore

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/verrors"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// recentWindow bounds how far back an access counts toward Stats'
// TouchedRecent figure.
const recentWindow = 5 * time.Minute

// Entry is a stored image plus the bookkeeping fields the facade and
// history ring report on.
type Entry struct {
	ImageID      string
	Image        vision.Image
	CameraID     string
	Metadata     map[string]any
	StoredAt     time.Time
	LastAccessAt time.Time
	ByteCost     int64
}

// Stats summarizes the store's current occupancy, matching spec.md §4.2's
// stats() contract.
type Stats struct {
	Count         int     `json:"count"`
	Bytes         int64   `json:"bytes"`
	MaxBytes      int64   `json:"max_bytes"`
	Percent       float64 `json:"percent"`
	TouchedRecent int     `json:"touched_recent"`
}

// Store is a byte- and count-budgeted LRU cache of decoded images, guarded
// by a single mutex the way the teacher's MemoryCache is.
type Store struct {
	mu       sync.Mutex
	data     map[string]*Entry
	lruList  []string
	maxCount int
	maxBytes int64
	currSize int64
	evictBatch int
	logger   *zap.Logger
}

// New builds a Store bounded by maxCount entries and maxBytes total image
// bytes. evictBatch is the number of entries evicted at once when a Put
// would exceed either budget, mirroring the teacher's batch-eviction knob.
func New(maxCount int, maxBytes int64, evictBatch int, logger *zap.Logger) *Store {
	if evictBatch < 1 {
		evictBatch = 1
	}
	return &Store{
		data:       make(map[string]*Entry),
		lruList:    make([]string, 0),
		maxCount:   maxCount,
		maxBytes:   maxBytes,
		evictBatch: evictBatch,
		logger:     logger,
	}
}

// Put stores img, with its free-form metadata, under a newly generated
// image ID and returns it. It evicts least-recently-used entries, in
// evictBatch-sized batches, until both the count and byte budgets are
// satisfied; if a single image's byte cost exceeds maxBytes outright, the
// image is never insertable and Put returns a CapacityExceeded error
// instead of evicting everything.
func (s *Store) Put(cameraID string, metadata map[string]any, img vision.Image) (*Entry, error) {
	cost := img.ByteCost()
	if cost > s.maxBytes {
		return nil, verrors.New(verrors.CapacityExceeded, "image exceeds the store's total byte budget")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for (len(s.data) >= s.maxCount || s.currSize+cost > s.maxBytes) && len(s.lruList) > 0 {
		s.evictBatchLocked()
	}

	now := time.Now()
	entry := &Entry{
		ImageID:      newImageID(),
		Image:        img,
		CameraID:     cameraID,
		Metadata:     metadata,
		StoredAt:     now,
		LastAccessAt: now,
		ByteCost:     cost,
	}
	s.data[entry.ImageID] = entry
	s.currSize += cost
	s.touchLocked(entry.ImageID)

	if s.logger != nil {
		s.logger.Debug("stored image",
			zap.String("image_id", entry.ImageID),
			zap.Int64("byte_cost", cost),
			zap.Int("count", len(s.data)))
	}
	return entry, nil
}

// Get retrieves the entry for imageID, promoting it to most-recently-used
// and touching its last-access timestamp. Returns an ImageNotFound error
// when absent.
func (s *Store) Get(imageID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[imageID]
	if !ok {
		return nil, verrors.New(verrors.ImageNotFound, "no image stored under id "+imageID)
	}
	entry.LastAccessAt = time.Now()
	s.touchLocked(imageID)
	return entry, nil
}

// GetMetadata returns the free-form metadata map stored alongside
// imageID, without affecting LRU order. Returns an ImageNotFound error
// when absent.
func (s *Store) GetMetadata(imageID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[imageID]
	if !ok {
		return nil, verrors.New(verrors.ImageNotFound, "no image stored under id "+imageID)
	}
	return entry.Metadata, nil
}

// Delete removes imageID, if present. Deleting an absent id is a no-op,
// matching the teacher's MemoryCache.delete.
func (s *Store) Delete(imageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.data[imageID]; ok {
		s.currSize -= entry.ByteCost
		delete(s.data, imageID)
		s.removeLRULocked(imageID)
	}
}

// Count returns the number of images currently stored.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// BytesUsed returns the total byte cost of currently stored images.
func (s *Store) BytesUsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currSize
}

// Stats reports the store's current occupancy, per spec.md §4.2.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var percent float64
	if s.maxBytes > 0 {
		percent = float64(s.currSize) / float64(s.maxBytes) * 100
	}

	cutoff := time.Now().Add(-recentWindow)
	touchedRecent := 0
	for _, entry := range s.data {
		if entry.LastAccessAt.After(cutoff) {
			touchedRecent++
		}
	}

	return Stats{
		Count:         len(s.data),
		Bytes:         s.currSize,
		MaxBytes:      s.maxBytes,
		Percent:       percent,
		TouchedRecent: touchedRecent,
	}
}

// Cleanup opportunistically evicts up to one evictBatch of
// least-recently-used entries even when the store is below both budgets,
// for the orchestrator to call under memory pressure. Returns the number
// of entries removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.data)
	s.evictBatchLocked()
	removed := before - len(s.data)
	if s.logger != nil && removed > 0 {
		s.logger.Debug("opportunistic cleanup", zap.Int("removed", removed))
	}
	return removed
}

// touchLocked moves key to the front of the LRU list. Caller must hold mu.
func (s *Store) touchLocked(key string) {
	s.removeLRULocked(key)
	s.lruList = append([]string{key}, s.lruList...)
}

// removeLRULocked removes key from the LRU list, if present. Caller must
// hold mu.
func (s *Store) removeLRULocked(key string) {
	for i, k := range s.lruList {
		if k == key {
			s.lruList = append(s.lruList[:i], s.lruList[i+1:]...)
			return
		}
	}
}

// evictBatchLocked evicts up to evictBatch least-recently-used entries.
// Caller must hold mu.
func (s *Store) evictBatchLocked() {
	for i := 0; i < s.evictBatch && len(s.lruList) > 0; i++ {
		key := s.lruList[len(s.lruList)-1]
		s.lruList = s.lruList[:len(s.lruList)-1]
		if entry, ok := s.data[key]; ok {
			s.currSize -= entry.ByteCost
			delete(s.data, key)
			if s.logger != nil {
				s.logger.Debug("evicted image", zap.String("image_id", key))
			}
		}
	}
}

func newImageID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "img_" + hex.EncodeToString(b[:])
}
