// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package groupcmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/marshal-foundation/marshal/auth"
)

// Name is the fully-qualified command name in the embedded bundle.
const Name = "operable:group"

// RequiredPermission gates every invocation of this command.
const RequiredPermission = auth.Permission("operable:manage_groups")

// Chat-facing messages that are not parameterized. These strings are
// part of the observable contract; change them and existing chat
// automations break.
const (
	msgMissingTarget = "ERROR! Must specify a target to act upon. See `operable:help operable:group` for more details."
	msgMissingGroup  = "ERROR! Must specify a group to modify."
	msgListHeader    = "The following are the available groups: \n"
)

// Command executes group administration against the repository. The
// reply is always a single chat-ready string: one success message or
// exactly one error line — the first failing precondition wins, and
// errors are never aggregated.
type Command struct {
	repo auth.Repository
}

// New creates the group command over the given repository.
func New(repo auth.Repository) *Command {
	return &Command{repo: repo}
}

// action is the operation selected by the invocation's flags.
type action int

const (
	actionNone action = iota
	actionCreate
	actionDrop
	actionAdd
	actionRemove
	actionList
)

// request is a parsed invocation.
type request struct {
	action action

	// group is the positional group name the action targets.
	group string

	// memberUser / memberGroup identify the membership edge for add
	// and remove. At most one is set.
	memberUser  string
	memberGroup string
}

// Execute parses the argument vector and performs the operation,
// returning the chat-facing reply text.
func (c *Command) Execute(args []string) string {
	req, errText := parse(args)
	if errText != "" {
		return errText
	}

	switch req.action {
	case actionCreate:
		return c.create(req.group)
	case actionDrop:
		return c.drop(req.group)
	case actionAdd:
		return c.modifyMembership(req, true)
	case actionRemove:
		return c.modifyMembership(req, false)
	case actionList:
		return c.list()
	default:
		return msgMissingTarget
	}
}

// parse interprets the argument vector. The second return value is a
// ready chat error message, empty on success.
func parse(args []string) (request, string) {
	flags := pflag.NewFlagSet("group", pflag.ContinueOnError)
	flags.SetOutput(discard{})

	create := flags.Bool("create", false, "create a group")
	drop := flags.Bool("drop", false, "delete a group")
	add := flags.Bool("add", false, "add a member to a group")
	remove := flags.Bool("remove", false, "remove a member from a group")
	list := flags.Bool("list", false, "list all groups")
	memberUser := flags.String("user", "", "user to add or remove")
	memberGroup := flags.String("group", "", "group to nest or un-nest")

	if err := flags.Parse(args); err != nil {
		return request{}, fmt.Sprintf("ERROR! %s", err)
	}

	var req request
	switch {
	case *create:
		req.action = actionCreate
	case *drop:
		req.action = actionDrop
	case *add:
		req.action = actionAdd
	case *remove:
		req.action = actionRemove
	case *list:
		req.action = actionList
	}

	req.group = flags.Arg(0)
	req.memberUser = *memberUser
	req.memberGroup = *memberGroup

	if req.action == actionAdd || req.action == actionRemove {
		// Exactly one membership target. Zero targets — or two,
		// which is equally unactionable — gets the help pointer.
		if (req.memberUser == "") == (req.memberGroup == "") {
			return request{}, msgMissingTarget
		}
		if req.group == "" {
			return request{}, msgMissingGroup
		}
	}
	return req, ""
}

func (c *Command) create(name string) string {
	if name == "" {
		return fmt.Sprintf("ERROR! Unable to create `%s`:\nMissing name", name)
	}
	if _, err := c.repo.CreateGroup(name); err != nil {
		var exists *auth.AlreadyExistsError
		if errors.As(err, &exists) {
			return fmt.Sprintf("ERROR! The group `%s` already exists.", name)
		}
		return errorReply(err)
	}
	return fmt.Sprintf("The group `%s` has been created.", name)
}

func (c *Command) drop(name string) string {
	if name == "" {
		return msgMissingGroup
	}
	if err := c.repo.DeleteGroup(name); err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("The group `%s` has been deleted.", name)
}

func (c *Command) modifyMembership(req request, adding bool) string {
	verb := "Removed"
	preposition := "from"
	if adding {
		verb = "Added"
		preposition = "to"
	}

	if req.memberUser != "" {
		var err error
		if adding {
			err = c.repo.AddUserToGroup(req.memberUser, req.group)
		} else {
			err = c.repo.RemoveUserFromGroup(req.memberUser, req.group)
		}
		if err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("%s the user `%s` %s the group `%s`", verb, req.memberUser, preposition, req.group)
	}

	var err error
	if adding {
		err = c.repo.AddGroupToGroup(req.memberGroup, req.group)
	} else {
		err = c.repo.RemoveGroupFromGroup(req.memberGroup, req.group)
	}
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("%s the group `%s` %s the group `%s`", verb, req.memberGroup, preposition, req.group)
}

func (c *Command) list() string {
	groups, err := c.repo.ListGroups()
	if err != nil {
		return errorReply(err)
	}

	var reply strings.Builder
	reply.WriteString(msgListHeader)
	for _, group := range groups {
		fmt.Fprintf(&reply, "* %s\n", group.Name)
	}
	return reply.String()
}

// errorReply maps a repository error to its single chat-facing line.
func errorReply(err error) string {
	var notFound *auth.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("ERROR! Could not find %s `%s`", notFound.Kind, notFound.Name)
	}
	return fmt.Sprintf("ERROR! %s", err)
}

// discard suppresses pflag's own usage output; replies carry the
// error text instead.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
