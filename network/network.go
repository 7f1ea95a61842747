/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package network answers "am I online right now?" with a bounded timeout
// and publishes online/offline transition events, for the orchestrator's
// recovery paths. It is the Go realization of spec.md's Network Status
// contract — no browser online/offline primitive exists server-side, so
// reachability is determined entirely by racing HEAD requests against
// known endpoints.
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Prober.
type Config struct {
	// Endpoints are raced against each other; the first response with a
	// status below 500 (including a 4xx error page) wins. A 5xx response
	// counts as unreachable. Defaults to DefaultEndpoints().
	Endpoints []string
	// HTTPClient issues the HEAD requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// ProbeLimiter paces repeated probes during an extended outage so a
	// tight recovery loop doesn't hammer the reachability endpoints.
	// Defaults to 1 probe/second with a burst of 1.
	ProbeLimiter *rate.Limiter
}

// DefaultEndpoints mirrors the well-known captive-portal and generic
// reachability endpoints spec.md §6 names as examples.
func DefaultEndpoints() []string {
	return []string{
		"http://captive.apple.com/hotspot-detect.html",
		"https://www.google.com",
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoints:    DefaultEndpoints(),
		HTTPClient:   http.DefaultClient,
		ProbeLimiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Prober implements the Network Supervisor: IsOnline on demand, OnChange
// subscriptions fed by an optional background Watch loop.
type Prober struct {
	endpoints  []string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.Mutex
	subs      map[int]func(online bool)
	nextID    int
	lastKnown *bool
}

// New constructs a Prober. A nil config uses DefaultConfig.
func New(cfg *Config) *Prober {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	limiter := cfg.ProbeLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(1), 1)
	}
	return &Prober{
		endpoints:  endpoints,
		httpClient: client,
		limiter:    limiter,
		subs:       make(map[int]func(online bool)),
	}
}

// IsOnline races a HEAD request against each configured endpoint, bounded
// by timeout, and reports true as soon as any one succeeds. The caller
// supplies the timeout; the orchestrator's connection-failure recovery
// probes once with 3s and does not retry. IsOnline itself has no opinion
// on the value.
func (p *Prober) IsOnline(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_ = p.limiter.Wait(ctx) // best-effort pacing; a cancelled ctx just means "probe now"

	results := make(chan bool, len(p.endpoints))
	for _, endpoint := range p.endpoints {
		go func(url string) {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				results <- false
				return
			}
			resp, err := p.httpClient.Do(req)
			if err != nil {
				results <- false
				return
			}
			_ = resp.Body.Close()
			results <- resp.StatusCode < 500
		}(endpoint)
	}

	for range p.endpoints {
		select {
		case ok := <-results:
			if ok {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// Subscription is returned by OnChange. Call Unsubscribe to stop receiving
// change events. This is the proper removal primitive spec.md §9's final
// open question calls for in place of the source's Off-calls-On bug — that
// behavior is intentionally NOT reproduced here.
type Subscription struct {
	prober *Prober
	id     int
}

// Unsubscribe removes the associated handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.prober.remove(s.id)
}

// OnChange registers handler to be called whenever Watch observes an
// online/offline transition.
func (p *Prober) OnChange(handler func(online bool)) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = handler
	return &Subscription{prober: p, id: id}
}

func (p *Prober) remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, id)
}

func (p *Prober) notify(online bool) {
	p.mu.Lock()
	if p.lastKnown != nil && *p.lastKnown == online {
		p.mu.Unlock()
		return
	}
	p.lastKnown = &online
	handlers := make([]func(bool), 0, len(p.subs))
	for _, h := range p.subs {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(online)
	}
}

// Watch polls IsOnline on interval until ctx is done, calling registered
// OnChange handlers only when the result changes from the previous poll.
// The orchestrator does not start Watch itself: its network-change
// subscription receives events only while a caller is running Watch.
func (p *Prober) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.notify(p.IsOnline(ctx, interval))
		}
	}
}
