package services

import (
	"log"
	"sync"
	"time"

	"github.com/BYTEDz/PCLink-sub000/internal/transfer"
)

// TransferSweepService periodically reaps transfer sessions older than the
// retention window, whatever their status, so abandoned descriptors and
// partial files don't accumulate on disk.
type TransferSweepService struct {
	engine        *transfer.Engine
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	isRunning     bool
}

func NewTransferSweepService(engine *transfer.Engine, checkInterval time.Duration) *TransferSweepService {
	if checkInterval <= 0 {
		checkInterval = 1 * time.Hour
	}
	return &TransferSweepService{
		engine:        engine,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the sweep service
func (s *TransferSweepService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	log.Printf("TransferSweepService started (interval: %v)", s.checkInterval)
}

// Stop stops the sweep service
func (s *TransferSweepService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("TransferSweepService stopped")
}

func (s *TransferSweepService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if reaped := s.engine.SweepStale(); reaped > 0 {
				log.Printf("TransferSweep: reaped %d stale sessions", reaped)
			}
		}
	}
}
