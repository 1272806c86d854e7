// Package health reports whether the backing store can serve requests.
package health

import (
	"context"
	"time"
)

const defaultTimeout = 5 * time.Second

// Target is what the probe checks. storage.Backend satisfies it, and so does
// database.Schema for the relational variant.
type Target interface {
	Ping(ctx context.Context) error
	NamespaceExists(ctx context.Context) (bool, error)
}

// Report is the probe result.
type Report struct {
	Configured      bool   `json:"configured"`
	Reachable       bool   `json:"reachable"`
	NamespaceExists bool   `json:"namespace_exists"`
	Detail          string `json:"detail,omitempty"`
}

// Healthy reports whether the store is reachable and its namespace exists.
func (r Report) Healthy() bool {
	return r.Configured && r.Reachable && r.NamespaceExists
}

// Probe checks a Target. A nil target reports not configured.
type Probe struct {
	target  Target
	timeout time.Duration
}

func NewProbe(target Target, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Probe{target: target, timeout: timeout}
}

// Check never fails; problems are described in the report.
func (p *Probe) Check(ctx context.Context) Report {
	if p.target == nil {
		return Report{Detail: "storage not configured"}
	}
	rep := Report{Configured: true}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.target.Ping(pingCtx)
	cancel()
	if err != nil {
		rep.Detail = "ping: " + err.Error()
		return rep
	}
	rep.Reachable = true

	nsCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	exists, err := p.target.NamespaceExists(nsCtx)
	if err != nil {
		rep.Detail = "namespace: " + err.Error()
		return rep
	}
	rep.NamespaceExists = exists
	if !exists {
		rep.Detail = "namespace missing"
	}
	return rep
}
