// Package health reports liveness and the state of the service's
// dependencies.
package health

import (
	"context"
	"math"
	"strings"
	"time"
)

const (
	StatusHealthy     = "healthy"
	StatusUnhealthy   = "unhealthy"
	StatusUnavailable = "unavailable"

	checkTimeout = 3 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	StartTime   time.Time
	Version     string
	Environment string
	Database    Pinger
	// DatabaseTarget is shown in reports; never put credentials here.
	DatabaseTarget string
	// Cache is optional. A nil or failing cache never fails the report.
	Cache Pinger
}

type Reporter struct {
	opts Options
	now  func() time.Time
}

func NewReporter(opts Options) *Reporter {
	return &Reporter{opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

type Welcome struct {
	Message   string `json:"message"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type Liveness struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type Check struct {
	Status         string   `json:"status"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	URL            string   `json:"url,omitempty"`
	Error          string   `json:"error,omitempty"`
	Note           string   `json:"note,omitempty"`
	UptimeSeconds  *float64 `json:"uptime_seconds,omitempty"`
}

type Report struct {
	Status      string           `json:"status"`
	Timestamp   string           `json:"timestamp"`
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Checks      map[string]Check `json:"checks"`
}

func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

func (r *Reporter) timestamp() string {
	return r.now().Format(time.RFC3339Nano)
}

func (r *Reporter) Welcome() Welcome {
	return Welcome{Message: "Todo API", Version: r.opts.Version, Timestamp: r.timestamp()}
}

func (r *Reporter) Liveness() Liveness {
	return Liveness{Status: StatusHealthy, Timestamp: r.timestamp()}
}

// Detailed probes every dependency. Only a database failure makes the report
// unhealthy.
func (r *Reporter) Detailed(ctx context.Context) *Report {
	report := &Report{
		Status:      StatusHealthy,
		Timestamp:   r.timestamp(),
		Version:     r.opts.Version,
		Environment: r.opts.Environment,
		Checks:      make(map[string]Check, 3),
	}

	db := Check{Status: StatusUnhealthy, Error: "database not configured"}
	if r.opts.Database != nil {
		db = r.probe(ctx, r.opts.Database)
		if db.Status == StatusHealthy {
			db.URL = r.opts.DatabaseTarget
		}
	}
	if db.Status != StatusHealthy {
		report.Status = StatusUnhealthy
	}
	report.Checks["database"] = db

	cache := Check{Status: StatusUnavailable, Note: "Redis not configured or unavailable"}
	if r.opts.Cache != nil {
		if c := r.probe(ctx, r.opts.Cache); c.Status == StatusHealthy {
			cache = c
		}
	}
	report.Checks["redis"] = cache

	uptime := roundMillis(r.now().Sub(r.opts.StartTime).Seconds())
	report.Checks["application"] = Check{Status: StatusHealthy, UptimeSeconds: &uptime}

	return report
}

func (r *Reporter) probe(ctx context.Context, p Pinger) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: StatusUnhealthy, Error: err.Error()}
	}
	elapsed := roundMillis(float64(time.Since(start)) / float64(time.Millisecond))
	return Check{Status: StatusHealthy, ResponseTimeMS: &elapsed}
}

func roundMillis(v float64) float64 {
	return math.Round(v*100) / 100
}

// Target returns the part of a connection string after the credentials, or
// "hidden" when the string has no user info to strip.
func Target(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return dsn[i+1:]
	}
	return "hidden"
}
