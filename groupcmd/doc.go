// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package groupcmd implements the operable:group chat command: group
// creation and deletion, user and nested-group membership, and
// listing.
//
// The argument vector is parsed with pflag (--create, --drop, --add,
// --remove, --list, --user=, --group=). Every reply is a single
// string with exact, contract-bound wording: one success message or
// one "ERROR! "-prefixed line for the first failing precondition.
// Mutations validate the target group before the member, so when both
// are missing the reply names the group.
package groupcmd
