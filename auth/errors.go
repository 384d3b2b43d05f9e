// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the deny verdict from [Authorize]. Absence of
// the required permission and absence of the user record both yield
// this — never a default allow.
var ErrUnauthorized = errors.New("auth: not authorized")

// Kinds of record a NotFoundError can reference.
const (
	KindUser  = "user"
	KindGroup = "group"
)

// NotFoundError reports a missing user or group. Callers branch on
// Kind to produce the exact chat-facing message for each case.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("auth: %s %q not found", e.Kind, e.Name)
}

// IsNotFound reports whether err is a NotFoundError of the given
// kind.
func IsNotFound(err error, kind string) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound) && notFound.Kind == kind
}

// AlreadyExistsError reports a group-name collision on creation.
// Group names are unique within the namespace.
type AlreadyExistsError struct {
	Group string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("auth: group %q already exists", e.Group)
}
