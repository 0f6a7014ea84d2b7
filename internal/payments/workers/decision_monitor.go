package workers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultProbeInterval = 2 * time.Second
	probeTimeout         = 500 * time.Millisecond
)

type DecisionHealth struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checkedAt"`
	Error     string    `json:"error,omitempty"`
}

// DecisionMonitor polls the decision service health endpoint. It only
// reports; payments are authorized regardless of what it last saw.
type DecisionMonitor struct {
	logger     *slog.Logger
	healthURL  string
	interval   time.Duration
	httpClient *http.Client

	mu     sync.RWMutex
	health DecisionHealth
}

func NewDecisionMonitor(healthURL string, interval time.Duration, httpClient *http.Client, logger *slog.Logger) *DecisionMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &DecisionMonitor{
		logger:     logger,
		healthURL:  healthURL,
		interval:   interval,
		httpClient: httpClient,
	}
}

// StartMonitoring probes immediately and then on every tick until ctx is done.
func (m *DecisionMonitor) StartMonitoring(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkHealth(ctx)

	for {
		select {
		case <-ticker.C:
			m.checkHealth(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *DecisionMonitor) Health() DecisionHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

func (m *DecisionMonitor) checkHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		m.logger.Error("Failed to create health check request", "url", m.healthURL, "error", err)
		m.update(false, err.Error())
		return
	}

	resp, err := m.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn("Health check request failed", "url", m.healthURL, "error", err)
		m.update(false, err.Error())
		return
	}

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("Health check returned non-OK status", "url", m.healthURL, "status", resp.StatusCode)
		m.update(false, http.StatusText(resp.StatusCode))
		return
	}

	m.update(true, "")
}

func (m *DecisionMonitor) update(healthy bool, errText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = DecisionHealth{Healthy: healthy, CheckedAt: time.Now().UTC(), Error: errText}
}
