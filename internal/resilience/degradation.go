package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// DegradationLevel represents the current degradation state of an upstream
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	DegradedThreshold  float64       `json:"degraded_threshold"`   // Error rate threshold (0.0-1.0)
	CriticalThreshold  float64       `json:"critical_threshold"`   // Error rate threshold (0.0-1.0)
	EmergencyThreshold float64       `json:"emergency_threshold"`  // Error rate threshold (0.0-1.0)
	RecoveryTimeWindow time.Duration `json:"recovery_time_window"` // Counters reset after this window
	MinRequests        int64         `json:"min_requests"`         // Requests needed before leaving normal
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		DegradedThreshold:  0.1,
		CriticalThreshold:  0.25,
		EmergencyThreshold: 0.5,
		RecoveryTimeWindow: 5 * time.Minute,
		MinRequests:        5,
	}
}

// ServiceHealth represents the health status of one upstream endpoint group
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"-"`
	LevelName     string           `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime time.Time        `json:"last_error_time,omitempty"`
	WindowStart   time.Time        `json:"window_start"`
}

// DegradationManager tracks windowed error rates per upstream so the health
// endpoint can report a degraded dependency before the breaker opens.
type DegradationManager struct {
	config   DegradationConfig
	now      func() time.Time
	services map[string]*ServiceHealth
	mutex    sync.RWMutex
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:   config,
		now:      time.Now,
		services: make(map[string]*ServiceHealth),
	}
}

// RegisterService starts tracking a service
func (dm *DegradationManager) RegisterService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if _, exists := dm.services[serviceName]; exists {
		return
	}
	dm.services[serviceName] = &ServiceHealth{
		ServiceName: serviceName,
		LevelName:   LevelNormal.String(),
		WindowStart: dm.now(),
	}
}

// RecordRequest records the outcome of one request; a nil err is a success
func (dm *DegradationManager) RecordRequest(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	now := dm.now()
	if now.Sub(service.WindowStart) > dm.config.RecoveryTimeWindow {
		service.TotalRequests = 0
		service.ErrorCount = 0
		service.WindowStart = now
	}

	service.TotalRequests++
	if err != nil {
		service.ErrorCount++
		service.LastError = err.Error()
		service.LastErrorTime = now
	}
	service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)

	dm.updateDegradationLevel(service)
}

func (dm *DegradationManager) updateDegradationLevel(service *ServiceHealth) {
	oldLevel := service.Level

	var newLevel DegradationLevel
	switch {
	case service.TotalRequests < dm.config.MinRequests:
		newLevel = LevelNormal
	case service.ErrorRate >= dm.config.EmergencyThreshold:
		newLevel = LevelEmergency
	case service.ErrorRate >= dm.config.CriticalThreshold:
		newLevel = LevelCritical
	case service.ErrorRate >= dm.config.DegradedThreshold:
		newLevel = LevelDegraded
	default:
		newLevel = LevelNormal
	}

	service.Level = newLevel
	service.LevelName = newLevel.String()

	if oldLevel != newLevel {
		slog.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// GetServiceHealth returns a copy of the health status of a service
func (dm *DegradationManager) GetServiceHealth(serviceName string) (ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return ServiceHealth{}, false
	}
	return *service, true
}

// GetAllServiceHealth returns health status for all services
func (dm *DegradationManager) GetAllServiceHealth() map[string]ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]ServiceHealth, len(dm.services))
	for name, service := range dm.services {
		result[name] = *service
	}
	return result
}

// IsServiceAvailable reports false only while a service is in emergency state
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return false
	}
	return service.Level != LevelEmergency
}
