package directory

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chatrelay/internal/protocol"
)

func TestRegisterDefaults(t *testing.T) {
	d := New()
	if err := d.Register("alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := d.Profile("alice")
	if !ok {
		t.Fatal("Profile: alice missing after Register")
	}
	want := protocol.Profile{Nickname: "alice", Avatar: "👤", Status: "online"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	d := New()
	if err := d.Register("alice"); err != nil {
		t.Fatal(err)
	}
	err := d.Register("alice")
	if err == nil || err.Error() != "Username already exists" {
		t.Errorf("duplicate register error = %v, want %q", err, "Username already exists")
	}
}

func TestSearchUsers(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	d.Register("Carol")

	if got := d.SearchUsers("ali"); len(got) != 1 || got[0].Username != "alice" {
		t.Errorf("search %q = %v", "ali", got)
	}
	// Case-insensitive, matches username or nickname.
	if got := d.SearchUsers("CAROL"); len(got) != 1 {
		t.Errorf("search %q = %v", "CAROL", got)
	}
	// Empty query matches every user.
	if got := d.SearchUsers(""); len(got) != 3 {
		t.Errorf("empty search returned %d users, want 3", len(got))
	}
	// Nickname matches too.
	nick := "bobby tables"
	d.UpdateProfile("bob", protocol.ProfilePatch{Nickname: &nick})
	if got := d.SearchUsers("tables"); len(got) != 1 || got[0].Username != "bob" {
		t.Errorf("nickname search = %v", got)
	}
}

func TestContacts(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	d.Register("carol")

	if err := d.AddContact("alice", "bob"); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if err := d.AddContact("alice", "bob"); err == nil {
		t.Error("duplicate AddContact should fail")
	}
	if err := d.AddContact("alice", "nobody"); err == nil {
		t.Error("AddContact for unknown user should fail")
	}
	if err := d.AddContact("alice", "carol"); err != nil {
		t.Fatal(err)
	}

	names := contactNames(d, "alice")
	if diff := cmp.Diff([]string{"bob", "carol"}, names); diff != "" {
		t.Errorf("contacts (-want +got):\n%s", diff)
	}

	// The relationship is one-sided.
	if d.HasContact("bob", "alice") {
		t.Error("AddContact must not create a reciprocal edge")
	}

	if err := d.RemoveContact("alice", "bob"); err != nil {
		t.Fatalf("RemoveContact: %v", err)
	}
	if err := d.RemoveContact("alice", "bob"); err == nil || err.Error() != "Contact not found" {
		t.Errorf("second RemoveContact error = %v, want %q", err, "Contact not found")
	}
	if diff := cmp.Diff([]string{"carol"}, contactNames(d, "alice")); diff != "" {
		t.Errorf("contacts after remove (-want +got):\n%s", diff)
	}
}

func TestAddRemoveContactRoundTrip(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	d.Register("carol")
	d.AddContact("alice", "carol")

	before := contactNames(d, "alice")
	d.AddContact("alice", "bob")
	d.RemoveContact("alice", "bob")
	if diff := cmp.Diff(before, contactNames(d, "alice")); diff != "" {
		t.Errorf("add+remove should restore the list (-want +got):\n%s", diff)
	}
}

func TestGroupIDSequence(t *testing.T) {
	d := New()
	d.Register("alice")

	for i, want := range []string{"group_1", "group_2", "group_3"} {
		if got := d.CreateGroup("alice", "g"); got != want {
			t.Errorf("group %d id = %q, want %q", i, got, want)
		}
	}
}

func TestJoinLeaveGroup(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	gid := d.CreateGroup("alice", "devs")

	name, others, err := d.JoinGroup("bob", gid)
	if err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if name != "devs" {
		t.Errorf("group name = %q", name)
	}
	if diff := cmp.Diff([]string{"alice"}, others); diff != "" {
		t.Errorf("join announcement targets (-want +got):\n%s", diff)
	}
	if _, _, err := d.JoinGroup("bob", gid); err == nil {
		t.Error("joining twice should fail")
	}
	if _, _, err := d.JoinGroup("bob", "group_99"); err == nil {
		t.Error("joining unknown group should fail")
	}

	_, remaining, err := d.LeaveGroup("alice", gid)
	if err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if diff := cmp.Diff([]string{"bob"}, remaining); diff != "" {
		t.Errorf("remaining members (-want +got):\n%s", diff)
	}
	if _, _, err := d.LeaveGroup("alice", gid); err == nil {
		t.Error("leaving twice should fail")
	}
}

func TestEmptyGroupSurvives(t *testing.T) {
	d := New()
	d.Register("alice")
	gid := d.CreateGroup("alice", "ghost")

	if _, _, err := d.LeaveGroup("alice", gid); err != nil {
		t.Fatal(err)
	}
	// The emptied group still exists and can be joined again.
	if _, _, err := d.JoinGroup("alice", gid); err != nil {
		t.Errorf("rejoining an emptied group should work, got %v", err)
	}
	// And a later group still gets the next id in sequence.
	if got := d.CreateGroup("alice", "next"); got != "group_2" {
		t.Errorf("next group id = %q, want group_2", got)
	}
}

func TestAddMemberPreconditions(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	gid := d.CreateGroup("alice", "devs")

	cases := []struct {
		name    string
		caller  string
		group   string
		friend  string
		wantErr string
	}{
		{"unknown group", "alice", "group_99", "bob", "Group not found"},
		{"caller not member", "bob", gid, "alice", "You are not a member of this group"},
		{"unknown friend", "alice", gid, "nobody", "Friend user not found"},
		{"not a contact", "alice", gid, "bob", "User is not in your contacts"},
	}
	for _, tc := range cases {
		_, _, _, err := d.AddMember(tc.caller, tc.group, tc.friend)
		if err == nil || err.Error() != tc.wantErr {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.wantErr)
		}
	}

	d.AddContact("alice", "bob")
	name, members, count, err := d.AddMember("alice", gid, "bob")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if name != "devs" || count != 2 {
		t.Errorf("AddMember = (%q, %d)", name, count)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, members); diff != "" {
		t.Errorf("members (-want +got):\n%s", diff)
	}
	if _, _, _, err := d.AddMember("alice", gid, "bob"); err == nil || err.Error() != "User already in group" {
		t.Errorf("re-adding member err = %v, want %q", err, "User already in group")
	}
}

func TestChangeUsernameRewritesReferences(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	d.AddContact("bob", "alice")
	d.AddContact("alice", "bob")
	gid := d.CreateGroup("alice", "devs")
	d.JoinGroup("bob", gid)

	profile, targets, err := d.ChangeUsername("alice", "alicia")
	if err != nil {
		t.Fatalf("ChangeUsername: %v", err)
	}
	if profile.Nickname != "alice" {
		t.Errorf("nickname should survive the rename, got %q", profile.Nickname)
	}

	// No structure still refers to the old name.
	if d.Exists("alice") {
		t.Error("old username still registered")
	}
	if !d.Exists("alicia") {
		t.Error("new username not registered")
	}
	if diff := cmp.Diff([]string{"alicia"}, contactNames(d, "bob")); diff != "" {
		t.Errorf("bob's contacts (-want +got):\n%s", diff)
	}
	groups := d.GroupsOf("alicia")
	if len(groups) != 1 || groups[0].GroupID != gid {
		t.Errorf("GroupsOf(alicia) = %v", groups)
	}

	// bob is a contact-of and a co-member; alicia is her own co-member.
	sort.Strings(targets)
	if diff := cmp.Diff([]string{"alicia", "bob"}, targets); diff != "" {
		t.Errorf("notification targets (-want +got):\n%s", diff)
	}
}

func TestChangeUsernameAdminFollows(t *testing.T) {
	d := New()
	d.Register("alice")
	gid := d.CreateGroup("alice", "devs")

	if _, _, err := d.ChangeUsername("alice", "alicia"); err != nil {
		t.Fatal(err)
	}
	if got := d.groups[gid].Admin; got != "alicia" {
		t.Errorf("admin after rename = %q, want %q", got, "alicia")
	}
	// Round trip restores everything.
	if _, _, err := d.ChangeUsername("alicia", "alice"); err != nil {
		t.Fatal(err)
	}
	if got := d.groups[gid].Admin; got != "alice" {
		t.Errorf("admin after round trip = %q, want %q", got, "alice")
	}
	groups := d.GroupsOf("alice")
	if len(groups) != 1 || groups[0].GroupID != gid {
		t.Errorf("GroupsOf after round trip = %v", groups)
	}
}

func TestChangeUsernameValidation(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")

	if _, _, err := d.ChangeUsername("alice", ""); err == nil || err.Error() != "New username required" {
		t.Errorf("empty rename err = %v", err)
	}
	if _, _, err := d.ChangeUsername("alice", "bob"); err == nil || err.Error() != "Username already taken" {
		t.Errorf("taken rename err = %v", err)
	}
}

func TestNotificationSet(t *testing.T) {
	d := New()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		d.Register(u)
	}
	// bob watches alice via contacts; carol shares a group with her.
	d.AddContact("bob", "alice")
	gid := d.CreateGroup("alice", "devs")
	d.JoinGroup("carol", gid)

	got := d.NotificationSet("alice")
	sort.Strings(got)
	// alice is her own group co-member.
	want := []string{"alice", "bob", "carol"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notification set (-want +got):\n%s", diff)
	}
}

func TestSetStatusWatchers(t *testing.T) {
	d := New()
	d.Register("alice")
	d.Register("bob")
	d.Register("carol")
	d.AddContact("bob", "alice")
	d.AddContact("carol", "alice")

	watchers := d.SetStatus("alice", "offline")
	sort.Strings(watchers)
	if diff := cmp.Diff([]string{"bob", "carol"}, watchers); diff != "" {
		t.Errorf("watchers (-want +got):\n%s", diff)
	}
	if p, _ := d.Profile("alice"); p.Status != "offline" {
		t.Errorf("status = %q, want offline", p.Status)
	}
	if got := d.SetStatus("nobody", "online"); got != nil {
		t.Errorf("SetStatus for unknown user = %v, want nil", got)
	}
}

func contactNames(d *Directory, owner string) []string {
	var names []string
	for _, c := range d.Contacts(owner) {
		names = append(names, c.Username)
	}
	return names
}
