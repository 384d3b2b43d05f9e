// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package auth

// Repository is the single source of truth for users, groups, and
// permission grants. Implementations must provide read-after-write
// consistency: once a mutating call returns, every subsequent read
// observes the change. The resolver performs no in-process caching of
// group membership, so an administrative command completing and the
// next invocation's resolver call seeing the result is a repository
// obligation, not a resolver one.
//
// Mutating operations validate target existence before changing
// anything and report exactly one error: the first failing
// precondition, in the order the method documents.
type Repository interface {
	// UserByUsername fetches a user record.
	// Returns *NotFoundError{Kind: KindUser} when absent.
	UserByUsername(username string) (*User, error)

	// UserByHandle resolves a platform handle to the canonical user
	// record. Returns *NotFoundError{Kind: KindUser} when no user
	// has that handle on that platform.
	UserByHandle(platform, handle string) (*User, error)

	// GroupByName fetches a group.
	// Returns *NotFoundError{Kind: KindGroup} when absent.
	GroupByName(name string) (*Group, error)

	// CreateGroup creates an empty group.
	// Returns *AlreadyExistsError when the name is taken.
	CreateGroup(name string) (*Group, error)

	// DeleteGroup removes a group. Membership edges referencing the
	// group (as parent or nested member) are cascaded away; the
	// referenced users and groups themselves are untouched.
	// Returns *NotFoundError{Kind: KindGroup} when absent.
	DeleteGroup(name string) error

	// ListGroups returns every group, sorted by name.
	ListGroups() ([]*Group, error)

	// AddUserToGroup adds a direct user membership. Precondition
	// order: group exists, then user exists.
	AddUserToGroup(username, group string) error

	// RemoveUserFromGroup removes a direct user membership.
	// Precondition order: group exists, then user exists.
	RemoveUserFromGroup(username, group string) error

	// AddGroupToGroup nests member inside parent. Precondition
	// order: parent exists, then member exists.
	AddGroupToGroup(member, parent string) error

	// RemoveGroupFromGroup un-nests member from parent.
	// Precondition order: parent exists, then member exists.
	RemoveGroupFromGroup(member, parent string) error
}
