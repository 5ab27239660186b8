// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package ratelimit implements per-client fixed-window request limiting.
package ratelimit

import (
	"sync"
	"time"

	"github.com/samber/oops"
)

// Rule caps requests per key to Limit within each Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// The service's limiter scopes. The global rules apply to every route; the
// route rules override nothing, they stack on top.
var (
	GlobalRules          = []Rule{{Limit: 200, Window: 24 * time.Hour}, {Limit: 50, Window: time.Hour}}
	LoginRule            = Rule{Limit: 5, Window: time.Minute}
	RetrievePasswordRule = Rule{Limit: 3, Window: time.Hour}
)

// counter tracks one key's count inside the current fixed window of one rule.
type counter struct {
	windowStart time.Time
	count       int
}

// Limiter applies a set of rules to string keys (client addresses).
type Limiter struct {
	rules []Rule
	now   func() time.Time

	mu      sync.Mutex
	buckets []map[string]*counter // one map per rule
}

// New creates a Limiter enforcing all given rules.
func New(rules ...Rule) (*Limiter, error) {
	if len(rules) == 0 {
		return nil, oops.Code("RATELIMIT_NO_RULES").Errorf("at least one rule is required")
	}
	for _, r := range rules {
		if r.Limit <= 0 || r.Window <= 0 {
			return nil, oops.Code("RATELIMIT_INVALID_RULE").
				With("limit", r.Limit).
				With("window", r.Window.String()).
				Errorf("rule limit and window must be positive")
		}
	}

	buckets := make([]map[string]*counter, len(rules))
	for i := range buckets {
		buckets[i] = make(map[string]*counter)
	}

	return &Limiter{
		rules:   rules,
		now:     time.Now,
		buckets: buckets,
	}, nil
}

// Allow reports whether the key may make another request. A request is
// counted against every rule only when all rules admit it, so a rejected
// request does not burn budget in the wider windows.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	counters := make([]*counter, len(l.rules))
	for i, rule := range l.rules {
		c, ok := l.buckets[i][key]
		if !ok || now.Sub(c.windowStart) >= rule.Window {
			c = &counter{windowStart: now}
			l.buckets[i][key] = c
		}
		if c.count >= rule.Limit {
			return false
		}
		counters[i] = c
	}

	for _, c := range counters {
		c.count++
	}
	return true
}

// Prune drops counters whose window has fully elapsed. Call periodically;
// without it the maps grow with one entry per client address seen.
func (l *Limiter) Prune() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, rule := range l.rules {
		for key, c := range l.buckets[i] {
			if now.Sub(c.windowStart) >= rule.Window {
				delete(l.buckets[i], key)
			}
		}
	}
}

// size returns the total number of live counters. Test helper.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.buckets {
		n += len(b)
	}
	return n
}
