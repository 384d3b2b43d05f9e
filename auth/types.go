// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"sort"
	"strings"
)

// Permission is a namespaced capability token, "bundle:name"
// (e.g. "operable:manage_groups"). Immutable once defined; granted
// to users or groups.
type Permission string

// Bundle returns the namespace qualifier before the colon, or ""
// when the permission is unqualified.
func (p Permission) Bundle() string {
	if i := strings.IndexByte(string(p), ':'); i >= 0 {
		return string(p)[:i]
	}
	return ""
}

// Name returns the capability name after the colon.
func (p Permission) Name() string {
	if i := strings.IndexByte(string(p), ':'); i >= 0 {
		return string(p)[i+1:]
	}
	return string(p)
}

// PermissionSet is a set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from its members.
func NewPermissionSet(permissions ...Permission) PermissionSet {
	set := make(PermissionSet, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}
	return set
}

// Add inserts a permission.
func (s PermissionSet) Add(p Permission) { s[p] = struct{}{} }

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Merge adds every member of other.
func (s PermissionSet) Merge(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	sorted := make([]Permission, 0, len(s))
	for p := range s {
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// User is a canonical identity. ChatHandles maps a platform name to
// the user's handle there, letting adapter gateways resolve chat
// senders to this record. Identity (Username) is immutable; the
// permission and handle sets are mutable.
type User struct {
	Username    string
	ChatHandles map[string]string
	Permissions PermissionSet
}

// Group is a named collection with two membership kinds: direct users
// and nested groups. The nesting edges form a directed graph that is
// not guaranteed acyclic — the resolver's traversal must terminate on
// cycles. A group may hold directly-granted permissions, which every
// transitive member inherits.
type Group struct {
	Name        string
	Users       map[string]struct{}
	Groups      map[string]struct{}
	Permissions PermissionSet
}
