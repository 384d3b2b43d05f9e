// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth models Marshal's users, groups, and permissions, and
// resolves a user's effective permission set on every invocation.
//
// Groups nest to form a directed graph that may contain cycles; the
// [Resolver] walks membership edges with a visited set, so a cycle
// terminates and contributes each group's permissions exactly once.
// [Resolver.Authorize] fails closed — a missing user record and a
// missing permission are the same deny.
//
// [Repository] is the storage seam. The [MemoryRepository]
// implementation serves bootstrap and tests; durable backends live
// outside this core. Whatever the backend, it must give
// read-after-write consistency: the resolver does no caching, so the
// next invocation after an administrative change observes it.
package auth
