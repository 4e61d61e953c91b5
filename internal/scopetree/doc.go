// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package scopetree provides a simple, thread-safe, in-memory container tree
// that hosts the engine's scopes. Containers hold items and other containers;
// nodes removed from the tree stay addressable until they are moved back.
package scopetree
