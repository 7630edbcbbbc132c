// Package directory is the in-memory registry of users and groups.  It is
// the broker's only shared mutable state: every handler reads or writes it,
// so all access goes through one RWMutex.  Multi-step operations (username
// changes, group membership updates) compute their notification targets
// inside the same critical section that performs the mutation, so no caller
// can observe an intermediate state.
//
// The directory is volatile.  Nothing is written to disk and process exit
// destroys all of it.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatrelay/internal/protocol"
)

// User is one registered account.  Contacts is an ordered set: a username
// appears at most once and insertion order is preserved.
type User struct {
	Profile  protocol.Profile
	Contacts []string
}

// Group is a named member set.  Members is ordered; Admin is the creator and
// follows the admin through username changes.
type Group struct {
	Name    string
	Members []string
	Admin   string
}

// Directory holds all users and groups.  Usernames are case-sensitive keys;
// group ids are assigned as "group_<N>" in creation order and never recycled
// (groups are never deleted, so len(groups)+1 stays monotonic).
type Directory struct {
	mu     sync.RWMutex
	users  map[string]*User
	groups map[string]*Group
	order  []string // group ids in creation order
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{
		users:  make(map[string]*User),
		groups: make(map[string]*Group),
	}
}

// Register creates a user with the default profile.  The new profile starts
// online even though no session is bound yet; login follows separately.
func (d *Directory) Register(username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[username]; exists {
		return errors.New("Username already exists")
	}
	d.users[username] = &User{
		Profile: protocol.Profile{
			Nickname: username,
			Avatar:   protocol.DefaultAvatar,
			Status:   protocol.StatusOnline,
		},
	}
	return nil
}

// Exists reports whether username is registered.
func (d *Directory) Exists(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok
}

// Profile returns a copy of the user's profile.
func (d *Directory) Profile(username string) (protocol.Profile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[username]
	if !ok {
		return protocol.Profile{}, false
	}
	return u.Profile, true
}

// Avatar returns the user's avatar glyph, or the default when unknown.
func (d *Directory) Avatar(username string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.users[username]; ok {
		return u.Profile.Avatar
	}
	return protocol.DefaultAvatar
}

// SetStatus records a presence change and returns the usernames that watch
// this user (everyone whose contact list contains it).  Unknown users return
// no watchers.
func (d *Directory) SetStatus(username, status string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[username]
	if !ok {
		return nil
	}
	u.Profile.Status = status
	return d.watchersLocked(username)
}

// UpdateProfile merges patch into the user's profile and returns the new
// profile together with the notification set (contacts-of plus group
// co-members, including the user where it is its own co-member).
func (d *Directory) UpdateProfile(username string, patch protocol.ProfilePatch) (protocol.Profile, []string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[username]
	if !ok {
		return protocol.Profile{}, nil, false
	}
	if patch.Nickname != nil {
		u.Profile.Nickname = *patch.Nickname
	}
	if patch.Avatar != nil {
		u.Profile.Avatar = *patch.Avatar
	}
	return u.Profile, d.notificationSetLocked(username), true
}

// ChangeUsername migrates a user record to a new key and rewrites every
// reference: contact lists, group member lists, and group admins.  It
// returns the (unchanged) profile and the notification set keyed by the new
// name; that one set serves both for the rename notice and for the profile
// broadcast.  All of it happens in one critical section.
func (d *Directory) ChangeUsername(old, newName string) (protocol.Profile, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if newName == "" {
		return protocol.Profile{}, nil, errors.New("New username required")
	}
	if _, taken := d.users[newName]; taken {
		return protocol.Profile{}, nil, errors.New("Username already taken")
	}
	u, ok := d.users[old]
	if !ok {
		return protocol.Profile{}, nil, errors.New("User not found")
	}

	delete(d.users, old)
	d.users[newName] = u

	for _, other := range d.users {
		for i, c := range other.Contacts {
			if c == old {
				other.Contacts[i] = newName
			}
		}
	}
	for _, g := range d.groups {
		for i, m := range g.Members {
			if m == old {
				g.Members[i] = newName
			}
		}
		if g.Admin == old {
			g.Admin = newName
		}
	}

	return u.Profile, d.notificationSetLocked(newName), nil
}

// SearchUsers returns every user whose username or nickname contains query,
// case-insensitively.  An empty query matches everyone.
func (d *Directory) SearchUsers(query string) []protocol.UserSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := strings.ToLower(query)
	results := make([]protocol.UserSummary, 0)
	for username, u := range d.users {
		if strings.Contains(strings.ToLower(username), q) ||
			strings.Contains(strings.ToLower(u.Profile.Nickname), q) {
			results = append(results, d.summaryLocked(username, u))
		}
	}
	return results
}

// AddContact appends target to owner's contact list.  The relationship is
// one-sided; no reciprocal edge is created.
func (d *Directory) AddContact(owner, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.users[owner]
	if !ok {
		return errors.New("Not logged in")
	}
	if _, exists := d.users[target]; !exists || contains(o.Contacts, target) {
		return errors.New("User not found or already in contacts")
	}
	o.Contacts = append(o.Contacts, target)
	return nil
}

// RemoveContact removes target from owner's contact list.
func (d *Directory) RemoveContact(owner, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.users[owner]
	if !ok {
		return errors.New("Not logged in")
	}
	idx := index(o.Contacts, target)
	if idx < 0 {
		return errors.New("Contact not found")
	}
	o.Contacts = append(o.Contacts[:idx], o.Contacts[idx+1:]...)
	return nil
}

// Contacts returns the owner's contact list in stored order, with each
// contact's current profile attached.
func (d *Directory) Contacts(owner string) []protocol.UserSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	o, ok := d.users[owner]
	if !ok {
		return []protocol.UserSummary{}
	}
	out := make([]protocol.UserSummary, 0, len(o.Contacts))
	for _, c := range o.Contacts {
		if u, exists := d.users[c]; exists {
			out = append(out, d.summaryLocked(c, u))
		}
	}
	return out
}

// HasContact reports whether target is in owner's contact list.
func (d *Directory) HasContact(owner, target string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.users[owner]
	return ok && contains(o.Contacts, target)
}

// CreateGroup creates a group with creator as sole member and admin and
// returns its id.
func (d *Directory) CreateGroup(creator, name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := fmt.Sprintf("group_%d", len(d.groups)+1)
	d.groups[id] = &Group{
		Name:    name,
		Members: []string{creator},
		Admin:   creator,
	}
	d.order = append(d.order, id)
	return id
}

// JoinGroup adds username to the group and returns the group name plus the
// other members (the announcement targets).
func (d *Directory) JoinGroup(username, groupID string) (string, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[groupID]
	if !ok || contains(g.Members, username) {
		return "", nil, errors.New("Group not found or already a member")
	}
	others := othersOf(g.Members, username)
	g.Members = append(g.Members, username)
	return g.Name, others, nil
}

// LeaveGroup removes username from the group and returns the group name plus
// the remaining members.  A group left by its last member stays registered.
func (d *Directory) LeaveGroup(username, groupID string) (string, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[groupID]
	if !ok {
		return "", nil, errors.New("Group not found or not a member")
	}
	idx := index(g.Members, username)
	if idx < 0 {
		return "", nil, errors.New("Group not found or not a member")
	}
	g.Members = append(g.Members[:idx], g.Members[idx+1:]...)
	remaining := append([]string(nil), g.Members...)
	return g.Name, remaining, nil
}

// AddMember inserts friend into the group on behalf of caller, enforcing the
// preconditions in the order the protocol promises: group exists, caller is
// a member, friend exists, friend is a contact of caller, friend is not
// already a member.  On success it returns the group name, the full member
// list (notification targets) and the new member count.
func (d *Directory) AddMember(caller, groupID, friend string) (string, []string, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[groupID]
	if !ok {
		return "", nil, 0, errors.New("Group not found")
	}
	if !contains(g.Members, caller) {
		return "", nil, 0, errors.New("You are not a member of this group")
	}
	c, ok := d.users[caller]
	if !ok {
		return "", nil, 0, errors.New("Not logged in")
	}
	if _, exists := d.users[friend]; !exists {
		return "", nil, 0, errors.New("Friend user not found")
	}
	if !contains(c.Contacts, friend) {
		return "", nil, 0, errors.New("User is not in your contacts")
	}
	if contains(g.Members, friend) {
		return "", nil, 0, errors.New("User already in group")
	}
	g.Members = append(g.Members, friend)
	members := append([]string(nil), g.Members...)
	return g.Name, members, len(g.Members), nil
}

// GroupFanout returns the group name and the members other than sender,
// provided sender is a member.  It is the membership gate for group
// messages and group file frames.
func (d *Directory) GroupFanout(sender, groupID string) (string, []string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[groupID]
	if !ok || !contains(g.Members, sender) {
		return "", nil, false
	}
	return g.Name, othersOf(g.Members, sender), true
}

// GroupsOf lists the groups username belongs to, in creation order.
func (d *Directory) GroupsOf(username string) []protocol.GroupSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]protocol.GroupSummary, 0)
	for _, id := range d.order {
		g := d.groups[id]
		if contains(g.Members, username) {
			out = append(out, protocol.GroupSummary{
				GroupID:     id,
				Name:        g.Name,
				MemberCount: len(g.Members),
			})
		}
	}
	return out
}

// NotificationSet returns the users who should learn about username's
// profile and presence changes: everyone whose contacts contain it plus
// every co-member of every group containing it.
func (d *Directory) NotificationSet(username string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notificationSetLocked(username)
}

// ---------------------------------------------------------------------------
// locked helpers
// ---------------------------------------------------------------------------

func (d *Directory) summaryLocked(username string, u *User) protocol.UserSummary {
	return protocol.UserSummary{
		Username: username,
		Nickname: u.Profile.Nickname,
		Avatar:   u.Profile.Avatar,
		Status:   u.Profile.Status,
	}
}

func (d *Directory) watchersLocked(username string) []string {
	var out []string
	for other, u := range d.users {
		if contains(u.Contacts, username) {
			out = append(out, other)
		}
	}
	return out
}

func (d *Directory) notificationSetLocked(username string) []string {
	seen := make(map[string]bool)
	for other, u := range d.users {
		if contains(u.Contacts, username) {
			seen[other] = true
		}
	}
	for _, g := range d.groups {
		if contains(g.Members, username) {
			for _, m := range g.Members {
				seen[m] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	return out
}

func contains(list []string, s string) bool {
	return index(list, s) >= 0
}

func index(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func othersOf(members []string, exclude string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out
}
