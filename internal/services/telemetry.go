package services

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// TelemetryService periodically samples host metrics and broadcasts a full
// server_status snapshot. Each frame carries the complete state, so a
// dropped frame only delays convergence until the next tick.
type TelemetryService struct {
	hub       *hub.Hub
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewTelemetryService(h *hub.Hub, interval time.Duration) *TelemetryService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TelemetryService{
		hub:      h,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the telemetry service
func (s *TelemetryService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	log.Printf("TelemetryService started (interval: %v)", s.interval)
}

// Stop stops the telemetry service
func (s *TelemetryService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("TelemetryService stopped")
}

func (s *TelemetryService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.hub.Count() == 0 {
				continue // nobody listening, skip the sampling cost
			}
			s.hub.Broadcast(models.Event{
				Type: models.EventServerStatus,
				Data: sample(),
			})
		}
	}
}

func sample() map[string]interface{} {
	status := map[string]interface{}{
		"platform":  runtime.GOOS,
		"timestamp": time.Now().UTC(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
		status["memory_total"] = vm.Total
		status["memory_used"] = vm.Used
	}
	if du, err := disk.Usage("/"); err == nil {
		status["disk_percent"] = du.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		status["uptime_seconds"] = uptime
	}
	return status
}
