package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"

	"github.com/sourcegraph/conc"
)

// Prober performs one liveness check. ctx carries the probe deadline.
type Prober interface {
	Probe(ctx context.Context, port int, path string) error
}

type HTTPProber struct {
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context, port int, path string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:"+strconv.Itoa(port)+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

type HealthTarget struct {
	Role config.PortRole
	Path string
}

type HealthOptions struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

/**
 * HealthMonitor polls every role's liveness path
 * @description
 * - unknown|down -> up after one success
 * - unknown|up -> down after FailureThreshold consecutive failures
 * - Timeouts count as ordinary failures
 * - Probe failures are recorded, never returned
 */
type HealthMonitor struct {
	targets []HealthTarget
	opts    HealthOptions
	prober  Prober
	mutex   sync.RWMutex
	records map[string]*models.HealthRecord
}

var ErrNoHealthTargets = errors.New("no roles to monitor")

func NewHealthMonitor(targets []HealthTarget, opts HealthOptions, prober Prober) *HealthMonitor {
	if prober == nil {
		prober = HTTPProber{}
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	m := &HealthMonitor{
		targets: targets,
		opts:    opts,
		prober:  prober,
		records: make(map[string]*models.HealthRecord, len(targets)),
	}
	for _, t := range targets {
		m.records[t.Role.Name] = &models.HealthRecord{
			Role:   t.Role.Name,
			Port:   t.Role.ResolvedPort,
			Path:   t.Path,
			Status: models.HealthUnknown,
		}
		setRoleGauge(t.Role.Name, models.HealthUnknown)
	}
	return m
}

// HealthTargetsFromConfig monitors every declared role on its configured liveness path.
func HealthTargetsFromConfig(cfg *config.AppConfig) []HealthTarget {
	var targets []HealthTarget
	for _, role := range cfg.Ports.Roles() {
		targets = append(targets, HealthTarget{Role: role, Path: cfg.HealthPath(role.Name)})
	}
	return targets
}

/**
 * Poll until ctx is cancelled
 * @param {context.Context} ctx - Stops the loop
 * @returns {error} Only configuration errors, nil on cancellation
 */
func (m *HealthMonitor) Run(ctx context.Context) error {
	if len(m.targets) == 0 {
		return ErrNoHealthTargets
	}
	if m.opts.Interval <= 0 {
		return fmt.Errorf("health interval must be positive, got %v", m.opts.Interval)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		m.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce probes all targets concurrently and returns when every probe finished.
// Results of probes interrupted by cancelling ctx are dropped.
func (m *HealthMonitor) CheckOnce(ctx context.Context) {
	var wg conc.WaitGroup
	for _, t := range m.targets {
		t := t
		wg.Go(func() {
			pctx, cancel := m.probeContext(ctx)
			defer cancel()
			err := m.prober.Probe(pctx, t.Role.ResolvedPort, t.Path)
			if ctx.Err() != nil {
				// shutting down, the probe was cut short
				return
			}
			m.apply(t.Role.Name, err, time.Now())
		})
	}
	wg.Wait()
}

func (m *HealthMonitor) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		return context.WithTimeout(ctx, m.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (m *HealthMonitor) apply(role string, err error, now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rec, ok := m.records[role]
	if !ok {
		return
	}
	prev := rec.Status
	rec.LastCheckTime = now
	if err == nil {
		rec.ConsecutiveSuccesses++
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
		rec.Status = models.HealthUp
	} else {
		rec.ConsecutiveFailures++
		rec.ConsecutiveSuccesses = 0
		rec.LastError = err.Error()
		if rec.ConsecutiveFailures >= m.opts.FailureThreshold {
			rec.Status = models.HealthDown
		}
	}
	if prev != rec.Status {
		logger.Infof("Role '%s' (port %d) %s -> %s", role, rec.Port, prev, rec.Status)
		setRoleGauge(role, rec.Status)
	}
}

// Snapshot returns copies of all records in target order.
func (m *HealthMonitor) Snapshot() []models.HealthRecord {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	list := make([]models.HealthRecord, 0, len(m.targets))
	for _, t := range m.targets {
		list = append(list, *m.records[t.Role.Name])
	}
	return list
}

func (m *HealthMonitor) Record(role string) (models.HealthRecord, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rec, ok := m.records[role]
	if !ok {
		return models.HealthRecord{}, false
	}
	return *rec, true
}
