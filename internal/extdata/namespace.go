// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package extdata

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateProvider is returned when a provider name is registered twice.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrProviderClosed is returned when a closed provider handle publishes.
	ErrProviderClosed = errors.New("provider handle is closed")
)

// Status is the outcome of a Lookup.
type Status int

const (
	NotFound Status = iota
	Found
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not found"
	}
}

// LookupResult is returned by Lookup. Entry is set when Status is Found;
// Candidates lists the competing sources when Status is Ambiguous.
type LookupResult struct {
	Status     Status
	Entry      Entry
	Candidates []string
}

// Change describes one modification of the namespace.
type Change struct {
	Source  string
	Token   string
	Removed bool
}

// Namespace stores external data entries. It is safe for concurrent use.
type Namespace struct {
	mu       sync.RWMutex
	byToken  map[string]map[string]*Entry // token -> source -> entry
	bySource map[string]map[string]*Entry // source -> token -> entry

	// names holds the constant names each coded token of a source publishes.
	// A name shared by several coded tokens stays until none of them uses it.
	names map[string]map[string]map[string]struct{} // source -> token -> names

	providers map[string]*Handle

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty namespace.
func New() *Namespace {
	return &Namespace{
		byToken:   make(map[string]map[string]*Entry),
		bySource:  make(map[string]map[string]*Entry),
		names:     make(map[string]map[string]map[string]struct{}),
		providers: make(map[string]*Handle),
		subs:      make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called for every change. The returned function
// removes the subscription.
func (n *Namespace) Subscribe(fn func(Change)) (cancel func()) {
	n.subsMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	n.subsMu.Unlock()

	return func() {
		n.subsMu.Lock()
		delete(n.subs, id)
		n.subsMu.Unlock()
	}
}

func (n *Namespace) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	n.subsMu.Lock()
	subs := make([]func(Change), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.subsMu.Unlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// Publish stores value for (source, token), replacing any previous value.
func (n *Namespace) Publish(source, token string, value any) {
	n.put(source, token, nil, &Entry{Source: source, Token: token, Value: value})
}

// PublishHidden is Publish for an entry that listings should not advertise.
func (n *Namespace) PublishHidden(source, token string, value any) {
	n.put(source, token, nil, &Entry{Source: source, Token: token, Value: value, Hidden: true})
}

// PublishWithConstants publishes a coded enumeration value. Each constant name
// is also published as a hidden entry of the same source carrying its code, so
// formulas can write `CameraState == Exposing`. Names dropped from constants
// since the previous publish are withdrawn.
func (n *Namespace) PublishWithConstants(source, token string, code int, constants map[int]string) {
	entries := []*Entry{{Source: source, Token: token, Value: code, Constants: constants}}
	names := make(map[string]struct{}, len(constants))
	for c, name := range constants {
		entries = append(entries, &Entry{Source: source, Token: name, Value: c, Hidden: true, constant: true})
		names[name] = struct{}{}
	}
	n.put(source, token, names, entries...)
}

func (n *Namespace) put(source, token string, names map[string]struct{}, entries ...*Entry) {
	var changes []Change

	n.mu.Lock()
	for _, e := range entries {
		if prev, ok := n.bySource[e.Source][e.Token]; ok && sameValue(prev, e) {
			continue
		}
		if n.byToken[e.Token] == nil {
			n.byToken[e.Token] = make(map[string]*Entry)
		}
		if n.bySource[e.Source] == nil {
			n.bySource[e.Source] = make(map[string]*Entry)
		}
		n.byToken[e.Token][e.Source] = e
		n.bySource[e.Source][e.Token] = e
		changes = append(changes, Change{Source: e.Source, Token: e.Token})
	}
	changes = append(changes, n.setNames(source, token, names)...)
	n.mu.Unlock()

	n.notify(changes)
}

// setNames records the constant names of (source, token) and removes the
// names no coded token of source publishes anymore. It must be called with
// n.mu held.
func (n *Namespace) setNames(source, token string, names map[string]struct{}) []Change {
	prev := n.names[source][token]
	if len(names) == 0 {
		delete(n.names[source], token)
		if len(n.names[source]) == 0 {
			delete(n.names, source)
		}
	} else {
		if n.names[source] == nil {
			n.names[source] = make(map[string]map[string]struct{})
		}
		n.names[source][token] = names
	}

	var changes []Change
	for name := range prev {
		if _, ok := names[name]; ok || n.nameInUse(source, name) {
			continue
		}
		if e, ok := n.bySource[source][name]; ok && e.constant {
			n.remove(source, name)
			changes = append(changes, Change{Source: source, Token: name, Removed: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Token < changes[j].Token })
	return changes
}

func (n *Namespace) nameInUse(source, name string) bool {
	for _, names := range n.names[source] {
		if _, ok := names[name]; ok {
			return true
		}
	}
	return false
}

// Withdraw removes (source, token) and the constant names only it published.
func (n *Namespace) Withdraw(source, token string) {
	var changes []Change

	n.mu.Lock()
	if _, ok := n.bySource[source][token]; ok {
		n.remove(source, token)
		changes = append(changes, Change{Source: source, Token: token, Removed: true})
	}
	changes = append(changes, n.setNames(source, token, nil)...)
	n.mu.Unlock()

	n.notify(changes)
}

// WithdrawAll removes every entry of source in one step, e.g. when the device
// behind it disconnects.
func (n *Namespace) WithdrawAll(source string) {
	var changes []Change

	n.mu.Lock()
	for t := range n.bySource[source] {
		n.remove(source, t)
		changes = append(changes, Change{Source: source, Token: t, Removed: true})
	}
	delete(n.names, source)
	n.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Token < changes[j].Token })
	n.notify(changes)
}

// remove must be called with n.mu held.
func (n *Namespace) remove(source, token string) {
	delete(n.bySource[source], token)
	if len(n.bySource[source]) == 0 {
		delete(n.bySource, source)
	}
	delete(n.byToken[token], source)
	if len(n.byToken[token]) == 0 {
		delete(n.byToken, token)
	}
}

// Lookup resolves key either as a bare token or as "<source>_<token>".
func (n *Namespace) Lookup(key string) LookupResult {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if sources := n.byToken[key]; len(sources) > 0 {
		if len(sources) == 1 {
			for _, e := range sources {
				return LookupResult{Status: Found, Entry: *e}
			}
		}
		candidates := make([]string, 0, len(sources))
		for s := range sources {
			candidates = append(candidates, s)
		}
		sort.Strings(candidates)
		return LookupResult{Status: Ambiguous, Candidates: candidates}
	}

	// The longest matching source wins so "Weather_Station_X" prefers the
	// source "Weather_Station" over "Weather".
	var best *Entry
	bestLen := -1
	for source, tokens := range n.bySource {
		prefix := source + "_"
		if len(source) <= bestLen || !strings.HasPrefix(key, prefix) {
			continue
		}
		if e, ok := tokens[key[len(prefix):]]; ok {
			best = e
			bestLen = len(source)
		}
	}
	if best != nil {
		return LookupResult{Status: Found, Entry: *best}
	}
	return LookupResult{Status: NotFound}
}

// Entries lists the namespace sorted by source and token. Hidden entries are
// included only when includeHidden is set.
func (n *Namespace) Entries(includeHidden bool) []Entry {
	n.mu.RLock()
	out := make([]Entry, 0)
	for _, tokens := range n.bySource {
		for _, e := range tokens {
			if e.Hidden && !includeHidden {
				continue
			}
			out = append(out, *e)
		}
	}
	n.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Sources returns the sorted names of all sources that currently publish data.
func (n *Namespace) Sources() []string {
	n.mu.RLock()
	out := make([]string, 0, len(n.bySource))
	for s := range n.bySource {
		out = append(out, s)
	}
	n.mu.RUnlock()
	sort.Strings(out)
	return out
}
