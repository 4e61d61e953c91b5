// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package extdata

import (
	"fmt"
	"sync"
)

// Handle is a registered provider's write access to the namespace. All of its
// entries use the provider name as their source.
type Handle struct {
	ns   *Namespace
	name string

	mu     sync.Mutex
	closed bool
}

// RegisterProvider reserves name as a source. A name can be registered only
// once until its handle is closed.
func (n *Namespace) RegisterProvider(name string) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.providers[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, name)
	}
	h := &Handle{ns: n, name: name}
	n.providers[name] = h
	return h, nil
}

// Name returns the provider's source name.
func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) open() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: %q", ErrProviderClosed, h.name)
	}
	return nil
}

// Publish stores value under token.
func (h *Handle) Publish(token string, value any) error {
	if err := h.open(); err != nil {
		return err
	}
	h.ns.Publish(h.name, token, value)
	return nil
}

// PublishHidden stores value under token without advertising it in listings.
func (h *Handle) PublishHidden(token string, value any) error {
	if err := h.open(); err != nil {
		return err
	}
	h.ns.PublishHidden(h.name, token, value)
	return nil
}

// PublishWithConstants stores a coded enumeration value.
func (h *Handle) PublishWithConstants(token string, code int, constants map[int]string) error {
	if err := h.open(); err != nil {
		return err
	}
	h.ns.PublishWithConstants(h.name, token, code, constants)
	return nil
}

// Withdraw removes token.
func (h *Handle) Withdraw(token string) error {
	if err := h.open(); err != nil {
		return err
	}
	h.ns.Withdraw(h.name, token)
	return nil
}

// WithdrawAll removes every entry of this provider.
func (h *Handle) WithdrawAll() error {
	if err := h.open(); err != nil {
		return err
	}
	h.ns.WithdrawAll(h.name)
	return nil
}

// Close withdraws all entries and releases the provider name.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.ns.WithdrawAll(h.name)

	h.ns.mu.Lock()
	if h.ns.providers[h.name] == h {
		delete(h.ns.providers, h.name)
	}
	h.ns.mu.Unlock()
}
