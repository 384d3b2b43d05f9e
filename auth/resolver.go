// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
)

// Resolver computes effective permissions over the mutable user/group
// graph. It holds no state beyond the repository reference — every
// call reads the graph fresh, which is what gives administrative
// commands read-after-write visibility on the very next invocation.
type Resolver struct {
	repo Repository
}

// NewResolver creates a resolver over the given repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// EffectivePermissions returns the closure of the user's direct
// permissions and the direct permissions of every group reachable
// from the user by following membership edges upward (a user in
// group G that is itself nested in group H holds both G's and H's
// permissions).
//
// The traversal tracks visited group names, so a membership cycle
// terminates and contributes each participating group's permissions
// exactly once.
func (r *Resolver) EffectivePermissions(username string) (PermissionSet, error) {
	user, err := r.repo.UserByUsername(username)
	if err != nil {
		return nil, err
	}

	effective := make(PermissionSet)
	effective.Merge(user.Permissions)

	groups, err := r.repo.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("listing groups for closure: %w", err)
	}

	// parents[g] is the set of groups that directly nest group g.
	// Built fresh per call; no membership caching is permitted here.
	parents := make(map[string][]string)
	var frontier []string
	for _, group := range groups {
		for member := range group.Groups {
			parents[member] = append(parents[member], group.Name)
		}
		if _, direct := group.Users[username]; direct {
			frontier = append(frontier, group.Name)
		}
	}

	byName := make(map[string]*Group, len(groups))
	for _, group := range groups {
		byName[group.Name] = group
	}

	visited := make(map[string]struct{})
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[name]; seen {
			continue
		}
		visited[name] = struct{}{}

		if group, exists := byName[name]; exists {
			effective.Merge(group.Permissions)
		}
		frontier = append(frontier, parents[name]...)
	}

	return effective, nil
}

// HasPermission reports whether the permission is in the user's
// effective set.
func (r *Resolver) HasPermission(username string, permission Permission) (bool, error) {
	effective, err := r.EffectivePermissions(username)
	if err != nil {
		return false, err
	}
	return effective.Has(permission), nil
}

// Authorize checks that the user holds the required permission. It
// fails closed: a missing user record and a missing permission both
// return [ErrUnauthorized]. Any other repository failure is returned
// as-is, which the caller must also treat as a deny.
func (r *Resolver) Authorize(username string, required Permission) error {
	allowed, err := r.HasPermission(username, required)
	if err != nil {
		if IsNotFound(err, KindUser) {
			return ErrUnauthorized
		}
		return err
	}
	if !allowed {
		return ErrUnauthorized
	}
	return nil
}

// IsDeny reports whether err represents an authorization denial as
// opposed to an infrastructure failure.
func IsDeny(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
