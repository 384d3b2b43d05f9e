// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package groupcmd

import (
	"testing"

	"github.com/marshal-foundation/marshal/auth"
)

func newCommand(t *testing.T) (*Command, *auth.MemoryRepository) {
	t.Helper()
	repo := auth.NewMemoryRepository()
	return New(repo), repo
}

func mustUser(t *testing.T, repo *auth.MemoryRepository, username string) {
	t.Helper()
	if err := repo.CreateUser(&auth.User{Username: username}); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
}

func TestCreate(t *testing.T) {
	cmd, _ := newCommand(t)

	got := cmd.Execute([]string{"--create", "elves"})
	want := "The group `elves` has been created."
	if got != want {
		t.Errorf("create reply = %q, want %q", got, want)
	}
}

func TestCreateDuplicate(t *testing.T) {
	// Scenario: --create test twice; the second yields the
	// already-exists error.
	cmd, _ := newCommand(t)

	cmd.Execute([]string{"--create", "test"})
	got := cmd.Execute([]string{"--create", "test"})
	want := "ERROR! The group `test` already exists."
	if got != want {
		t.Errorf("duplicate create reply = %q, want %q", got, want)
	}
}

func TestCreateMissingName(t *testing.T) {
	cmd, _ := newCommand(t)

	got := cmd.Execute([]string{"--create"})
	want := "ERROR! Unable to create ``:\nMissing name"
	if got != want {
		t.Errorf("empty-name create reply = %q, want %q", got, want)
	}
}

func TestDrop(t *testing.T) {
	cmd, _ := newCommand(t)
	cmd.Execute([]string{"--create", "elves"})

	got := cmd.Execute([]string{"--drop", "elves"})
	want := "The group `elves` has been deleted."
	if got != want {
		t.Errorf("drop reply = %q, want %q", got, want)
	}
}

func TestDropThenListAndReAdd(t *testing.T) {
	// Idempotence: after --drop, --list never shows the group, and
	// adding a user to the dropped name reports group-not-found.
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")
	cmd.Execute([]string{"--create", "elves"})
	cmd.Execute([]string{"--drop", "elves"})

	if got := cmd.Execute([]string{"--list"}); got != "The following are the available groups: \n" {
		t.Errorf("list after drop = %q, want empty listing", got)
	}

	got := cmd.Execute([]string{"--add", "--user=belf", "elves"})
	want := "ERROR! Could not find group `elves`"
	if got != want {
		t.Errorf("add to dropped group = %q, want %q", got, want)
	}
}

func TestAddUser(t *testing.T) {
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")
	cmd.Execute([]string{"--create", "elves"})

	got := cmd.Execute([]string{"--add", "--user=belf", "elves"})
	want := "Added the user `belf` to the group `elves`"
	if got != want {
		t.Errorf("add user reply = %q, want %q", got, want)
	}
}

func TestAddUserBeforeGroupExists(t *testing.T) {
	// Scenario: --add --user=belf elves before elves exists.
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")

	got := cmd.Execute([]string{"--add", "--user=belf", "elves"})
	want := "ERROR! Could not find group `elves`"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestAddMissingUser(t *testing.T) {
	cmd, _ := newCommand(t)
	cmd.Execute([]string{"--create", "elves"})

	got := cmd.Execute([]string{"--add", "--user=ghost", "elves"})
	want := "ERROR! Could not find user `ghost`"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestNestGroups(t *testing.T) {
	cmd, _ := newCommand(t)
	cmd.Execute([]string{"--create", "elves"})
	cmd.Execute([]string{"--create", "workshop"})

	got := cmd.Execute([]string{"--add", "--group=elves", "workshop"})
	want := "Added the group `elves` to the group `workshop`"
	if got != want {
		t.Errorf("nest reply = %q, want %q", got, want)
	}

	// The target group is validated before the member: with both
	// missing, the reply names the target.
	got = cmd.Execute([]string{"--add", "--group=phantom", "shadow"})
	want = "ERROR! Could not find group `shadow`"
	if got != want {
		t.Errorf("missing target reply = %q, want %q", got, want)
	}

	// With the target present, the reply names the missing member.
	got = cmd.Execute([]string{"--add", "--group=phantom", "workshop"})
	want = "ERROR! Could not find group `phantom`"
	if got != want {
		t.Errorf("missing member reply = %q, want %q", got, want)
	}
}

func TestRemoveUser(t *testing.T) {
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")
	cmd.Execute([]string{"--create", "elves"})
	cmd.Execute([]string{"--add", "--user=belf", "elves"})

	got := cmd.Execute([]string{"--remove", "--user=belf", "elves"})
	want := "Removed the user `belf` from the group `elves`"
	if got != want {
		t.Errorf("remove reply = %q, want %q", got, want)
	}

	got = cmd.Execute([]string{"--remove", "--user=belf", "phantoms"})
	want = "ERROR! Could not find group `phantoms`"
	if got != want {
		t.Errorf("remove from missing group = %q, want %q", got, want)
	}
}

func TestUnnestGroups(t *testing.T) {
	cmd, _ := newCommand(t)
	cmd.Execute([]string{"--create", "elves"})
	cmd.Execute([]string{"--create", "workshop"})
	cmd.Execute([]string{"--add", "--group=elves", "workshop"})

	got := cmd.Execute([]string{"--remove", "--group=elves", "workshop"})
	want := "Removed the group `elves` from the group `workshop`"
	if got != want {
		t.Errorf("un-nest reply = %q, want %q", got, want)
	}
}

func TestAddWithoutMemberTarget(t *testing.T) {
	cmd, _ := newCommand(t)
	cmd.Execute([]string{"--create", "elves"})

	got := cmd.Execute([]string{"--add", "elves"})
	want := "ERROR! Must specify a target to act upon. See `operable:help operable:group` for more details."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestAddWithoutGroupName(t *testing.T) {
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")

	got := cmd.Execute([]string{"--add", "--user=belf"})
	want := "ERROR! Must specify a group to modify."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestListAlphabetical(t *testing.T) {
	// Scenario: elves created after cheer still lists after it.
	cmd, repo := newCommand(t)
	mustUser(t, repo, "belf")
	cmd.Execute([]string{"--create", "elves"})
	cmd.Execute([]string{"--create", "cheer"})
	cmd.Execute([]string{"--add", "--user=belf", "elves"})

	got := cmd.Execute([]string{"--list"})
	want := "The following are the available groups: \n* cheer\n* elves\n"
	if got != want {
		t.Errorf("list reply = %q, want %q", got, want)
	}
}

func TestNoActionFlag(t *testing.T) {
	cmd, _ := newCommand(t)

	got := cmd.Execute([]string{"elves"})
	want := "ERROR! Must specify a target to act upon. See `operable:help operable:group` for more details."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}
