// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository. An RWMutex gives it
// read-after-write consistency; accessors return copies so callers
// never share mutable state with the store.
//
// Production deployments back the repository with durable storage;
// the in-memory form serves bootstrap, the null adapter, and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[string]*User
	groups map[string]*Group
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[string]*User),
		groups: make(map[string]*Group),
	}
}

// CreateUser inserts a user record. Bootstrap-only: user identity
// management is outside the command surface this core exposes.
func (r *MemoryRepository) CreateUser(user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return &AlreadyExistsError{Group: user.Username}
	}
	stored := &User{
		Username:    user.Username,
		ChatHandles: make(map[string]string, len(user.ChatHandles)),
		Permissions: make(PermissionSet, len(user.Permissions)),
	}
	for platform, handle := range user.ChatHandles {
		stored.ChatHandles[platform] = handle
	}
	stored.Permissions.Merge(user.Permissions)
	r.users[user.Username] = stored
	return nil
}

// GrantUserPermission adds a direct permission to a user.
func (r *MemoryRepository) GrantUserPermission(username string, permission Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[username]
	if !exists {
		return &NotFoundError{Kind: KindUser, Name: username}
	}
	user.Permissions.Add(permission)
	return nil
}

// GrantGroupPermission adds a direct permission to a group.
func (r *MemoryRepository) GrantGroupPermission(group string, permission Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.groups[group]
	if !exists {
		return &NotFoundError{Kind: KindGroup, Name: group}
	}
	record.Permissions.Add(permission)
	return nil
}

func (r *MemoryRepository) UserByUsername(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[username]
	if !exists {
		return nil, &NotFoundError{Kind: KindUser, Name: username}
	}
	return copyUser(user), nil
}

func (r *MemoryRepository) UserByHandle(platform, handle string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.ChatHandles[platform] == handle {
			return copyUser(user), nil
		}
	}
	return nil, &NotFoundError{Kind: KindUser, Name: handle}
}

func (r *MemoryRepository) GroupByName(name string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, exists := r.groups[name]
	if !exists {
		return nil, &NotFoundError{Kind: KindGroup, Name: name}
	}
	return copyGroup(group), nil
}

func (r *MemoryRepository) CreateGroup(name string) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return nil, &AlreadyExistsError{Group: name}
	}
	group := &Group{
		Name:        name,
		Users:       make(map[string]struct{}),
		Groups:      make(map[string]struct{}),
		Permissions: make(PermissionSet),
	}
	r.groups[name] = group
	return copyGroup(group), nil
}

func (r *MemoryRepository) DeleteGroup(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; !exists {
		return &NotFoundError{Kind: KindGroup, Name: name}
	}
	delete(r.groups, name)

	// Cascade: drop nesting edges that referenced the group. The
	// member groups and users themselves survive.
	for _, group := range r.groups {
		delete(group.Groups, name)
	}
	return nil
}

func (r *MemoryRepository) ListGroups() ([]*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]*Group, 0, len(r.groups))
	for _, group := range r.groups {
		groups = append(groups, copyGroup(group))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (r *MemoryRepository) AddUserToGroup(username, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.groups[group]
	if !exists {
		return &NotFoundError{Kind: KindGroup, Name: group}
	}
	if _, exists := r.users[username]; !exists {
		return &NotFoundError{Kind: KindUser, Name: username}
	}
	record.Users[username] = struct{}{}
	return nil
}

func (r *MemoryRepository) RemoveUserFromGroup(username, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.groups[group]
	if !exists {
		return &NotFoundError{Kind: KindGroup, Name: group}
	}
	if _, exists := r.users[username]; !exists {
		return &NotFoundError{Kind: KindUser, Name: username}
	}
	delete(record.Users, username)
	return nil
}

func (r *MemoryRepository) AddGroupToGroup(member, parent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parentRecord, exists := r.groups[parent]
	if !exists {
		return &NotFoundError{Kind: KindGroup, Name: parent}
	}
	if _, exists := r.groups[member]; !exists {
		return &NotFoundError{Kind: KindGroup, Name: member}
	}
	parentRecord.Groups[member] = struct{}{}
	return nil
}

func (r *MemoryRepository) RemoveGroupFromGroup(member, parent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parentRecord, exists := r.groups[parent]
	if !exists {
		return &NotFoundError{Kind: KindGroup, Name: parent}
	}
	if _, exists := r.groups[member]; !exists {
		return &NotFoundError{Kind: KindGroup, Name: member}
	}
	delete(parentRecord.Groups, member)
	return nil
}

func copyUser(user *User) *User {
	copied := &User{
		Username:    user.Username,
		ChatHandles: make(map[string]string, len(user.ChatHandles)),
		Permissions: make(PermissionSet, len(user.Permissions)),
	}
	for platform, handle := range user.ChatHandles {
		copied.ChatHandles[platform] = handle
	}
	copied.Permissions.Merge(user.Permissions)
	return copied
}

func copyGroup(group *Group) *Group {
	copied := &Group{
		Name:        group.Name,
		Users:       make(map[string]struct{}, len(group.Users)),
		Groups:      make(map[string]struct{}, len(group.Groups)),
		Permissions: make(PermissionSet, len(group.Permissions)),
	}
	for username := range group.Users {
		copied.Users[username] = struct{}{}
	}
	for name := range group.Groups {
		copied.Groups[name] = struct{}{}
	}
	copied.Permissions.Merge(group.Permissions)
	return copied
}
