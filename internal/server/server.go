// Package server implements the chatrelay broker: the TCP listener, the
// per-connection sessions, the router, and the handler for every protocol
// action.
//
// Concurrency overview
// --------------------
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Accept loop                                             │
//	│  Accepts TCP connections; spawns readPump + writePump    │
//	│  goroutines for each Session.                            │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  one dispatch call per decoded frame
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Directory  (sync.RWMutex)                               │
//	│  Users, contacts, groups.  Multi-step mutations commit   │
//	│  atomically and hand back their notification targets.    │
//	└───────────────────┬─────────────────────────────────────┘
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Router  (sync.RWMutex)                                  │
//	│  username → Session; unicast and fan-out through each    │
//	│  session's buffered send channel.                        │
//	└─────────────────────────────────────────────────────────┘
//
// A handler runs entirely on its session's readPump goroutine, so the reply
// to a request is queued after the request's side effects are committed and
// before the next frame from the same connection is read.
package server

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"chatrelay/internal/config"
	"chatrelay/internal/directory"
	"chatrelay/internal/protocol"
)

// Server ties together the listener, the directory, and the router.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	dir    *directory.Directory
	router *Router

	listener net.Listener
	entropy  *ulid.MonotonicEntropy
}

// New creates a Server.  The directory starts empty; all state is volatile.
func New(cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		dir:     directory.New(),
		router:  newRouter(),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Listen binds the TCP socket.  Addresses are reusable across restarts; the
// standard listener sets SO_REUSEADDR on Unix.
func (srv *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (srv *Server) Addr() string {
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Serve accepts connections until the listener is closed.  Each accepted
// connection gets a fresh Session with its own read and write goroutines.
func (srv *Server) Serve() error {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			// Closed by Shutdown.
			return nil
		}
		// The entropy source is not safe for concurrent reads, so session
		// ids are minted here on the accept goroutine.
		sid := ulid.MustNew(ulid.Timestamp(time.Now()), srv.entropy).String()
		go srv.serveConn(sid, conn)
	}
}

// ListenAndServe binds addr and runs the accept loop.
func (srv *Server) ListenAndServe(addr string) error {
	if err := srv.Listen(addr); err != nil {
		return err
	}
	return srv.Serve()
}

// Shutdown stops accepting connections.  Existing sessions die with their
// sockets; nothing is persisted.
func (srv *Server) Shutdown() {
	if srv.listener != nil {
		srv.listener.Close()
	}
}

func (srv *Server) serveConn(sid string, conn net.Conn) {
	s := newSession(sid, conn, srv)
	srv.log.Debug("session opened", "sid", sid, "remote", conn.RemoteAddr().String())

	// writePump runs in its own goroutine; readPump runs in this one.
	go s.writePump()
	s.readPump()
}

// disconnect is the session teardown hook.  A bound user goes offline and
// its watchers are told, unless a later login already rebound the username
// to another session.
func (srv *Server) disconnect(s *Session) {
	if username := s.user(); username != "" {
		if srv.router.Unbind(username, s) {
			watchers := srv.dir.SetStatus(username, protocol.StatusOffline)
			srv.notifyStatus(username, protocol.StatusOffline, watchers)
			srv.log.Debug("user offline", "sid", s.sid, "user", username)
		}
	}
	s.close()
	srv.log.Debug("session closed", "sid", s.sid)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// dispatch routes one decoded request to its handler.  Unknown actions are
// ignored.
func (srv *Server) dispatch(s *Session, req *protocol.Request) {
	switch req.Action {
	case protocol.ActionRegister:
		srv.handleRegister(s, req)
	case protocol.ActionLogin:
		srv.handleLogin(s, req)
	case protocol.ActionUpdateProfile:
		srv.handleUpdateProfile(s, req)
	case protocol.ActionChangeUsername:
		srv.handleChangeUsername(s, req)
	case protocol.ActionSearchUsers:
		srv.handleSearchUsers(s, req)
	case protocol.ActionAddContact:
		srv.handleAddContact(s, req)
	case protocol.ActionRemoveContact:
		srv.handleRemoveContact(s, req)
	case protocol.ActionGetContacts:
		srv.handleGetContacts(s)
	case protocol.ActionSendMessage:
		srv.handleSendMessage(s, req)
	case protocol.ActionCreateGroup:
		srv.handleCreateGroup(s, req)
	case protocol.ActionJoinGroup:
		srv.handleJoinGroup(s, req)
	case protocol.ActionLeaveGroup:
		srv.handleLeaveGroup(s, req)
	case protocol.ActionAddFriend:
		srv.handleAddFriendToGroup(s, req)
	case protocol.ActionSendGroupMsg:
		srv.handleSendGroupMessage(s, req)
	case protocol.ActionGetGroups:
		srv.handleGetGroups(s)
	case protocol.ActionTyping:
		srv.handleTyping(s, req)
	case protocol.ActionUpdateStatus:
		srv.handleUpdateStatus(s, req)
	case protocol.ActionSendFile:
		srv.handleSendFile(s, req)
	case protocol.ActionSendGroupFile:
		srv.handleSendGroupFile(s, req)
	case protocol.ActionFileStart:
		srv.handleFileStart(s, req)
	case protocol.ActionFileChunk:
		srv.handleFileChunk(s, req)
	case protocol.ActionFileEnd:
		srv.handleFileEnd(s, req)
	case protocol.ActionGroupFileStart:
		srv.handleGroupFileStart(s, req)
	case protocol.ActionGroupFileChunk:
		srv.handleGroupFileChunk(s, req)
	case protocol.ActionGroupFileEnd:
		srv.handleGroupFileEnd(s, req)
	}
}

func (srv *Server) fail(s *Session, msg string) {
	s.queueOut(protocol.Response{Success: false, Message: msg})
}

// requireUser returns the bound username or replies "Not logged in".
func (srv *Server) requireUser(s *Session) (string, bool) {
	username := s.user()
	if username == "" {
		srv.fail(s, "Not logged in")
		return "", false
	}
	return username, true
}

// clock renders the broker's local wall-clock as an HH:MM timestamp.
func clock() string {
	return time.Now().Format("15:04")
}

// ---------------------------------------------------------------------------
// Account handlers
// ---------------------------------------------------------------------------

func (srv *Server) handleRegister(s *Session, req *protocol.Request) {
	if err := srv.dir.Register(req.Username); err != nil {
		srv.fail(s, err.Error())
		return
	}
	srv.log.Info("registered", "user", req.Username)
	s.queueOut(protocol.Response{Success: true, Message: "Registration successful"})
}

func (srv *Server) handleLogin(s *Session, req *protocol.Request) {
	username := req.Username
	if !srv.dir.Exists(username) {
		srv.fail(s, "User not found")
		return
	}

	// A session re-logging-in under a new name abandons its old binding.
	if cur := s.user(); cur != "" && cur != username {
		srv.router.Unbind(cur, s)
	}
	// A second login for an already-bound user evicts the prior session.
	if prev := srv.router.Bind(username, s); prev != nil {
		prev.close()
		srv.log.Info("evicted prior session", "user", username, "sid", prev.sid)
	}
	s.bind(username)

	watchers := srv.dir.SetStatus(username, protocol.StatusOnline)
	profile, _ := srv.dir.Profile(username)
	srv.notifyStatus(username, protocol.StatusOnline, watchers)
	srv.log.Info("login", "user", username, "sid", s.sid)
	s.queueOut(protocol.Response{Success: true, Message: "Login successful", Profile: &profile})
}

func (srv *Server) handleUpdateProfile(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	patch := protocol.ProfilePatch{}
	if req.Profile != nil {
		patch = *req.Profile
	}
	profile, targets, ok := srv.dir.UpdateProfile(username, patch)
	if !ok {
		srv.fail(s, "Not logged in")
		return
	}
	srv.broadcastProfile(username, profile, targets)
	s.queueOut(protocol.Response{Success: true, Message: "Profile updated"})
}

func (srv *Server) handleChangeUsername(s *Session, req *protocol.Request) {
	old, ok := srv.requireUser(s)
	if !ok {
		return
	}
	newName := req.NewUsername
	profile, targets, err := srv.dir.ChangeUsername(old, newName)
	if err != nil {
		srv.fail(s, err.Error())
		return
	}
	srv.router.Rebind(old, newName, s)
	s.bind(newName)
	srv.log.Info("username changed", "old", old, "new", newName)

	notice := protocol.UsernameChanged{
		Type:        protocol.EventUsernameChanged,
		OldUsername: old,
		NewUsername: newName,
	}
	for _, t := range targets {
		if t != newName {
			srv.router.Unicast(t, notice)
		}
	}
	s.queueOut(protocol.Response{
		Success:     true,
		Message:     "Username changed",
		Profile:     &profile,
		NewUsername: newName,
	})
	srv.broadcastProfile(newName, profile, targets)
}

func (srv *Server) handleSearchUsers(s *Session, req *protocol.Request) {
	s.queueOut(protocol.SearchReply{Results: srv.dir.SearchUsers(req.Query)})
}

func (srv *Server) handleUpdateStatus(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	watchers := srv.dir.SetStatus(username, req.Status)
	srv.notifyStatus(username, req.Status, watchers)
	s.queueOut(protocol.Response{Success: true, Message: "Status updated"})
}

// ---------------------------------------------------------------------------
// Contact handlers
// ---------------------------------------------------------------------------

func (srv *Server) handleAddContact(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if err := srv.dir.AddContact(username, req.Username); err != nil {
		srv.fail(s, err.Error())
		return
	}
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Added %s to contacts", req.Username),
	})
}

func (srv *Server) handleRemoveContact(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if err := srv.dir.RemoveContact(username, req.Username); err != nil {
		srv.fail(s, err.Error())
		return
	}
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Removed %s from contacts", req.Username),
	})
}

func (srv *Server) handleGetContacts(s *Session) {
	username := s.user()
	if username == "" {
		s.queueOut(protocol.ContactsReply{Contacts: []protocol.UserSummary{}})
		return
	}
	s.queueOut(protocol.ContactsReply{Contacts: srv.dir.Contacts(username)})
}

// ---------------------------------------------------------------------------
// Messaging handlers
// ---------------------------------------------------------------------------

func (srv *Server) handleSendMessage(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	recipient := srv.router.Lookup(req.Recipient)
	if recipient == nil {
		srv.fail(s, "Recipient not online")
		return
	}
	recipient.queueOut(protocol.PrivateMessage{
		Type:      protocol.EventPrivateMessage,
		Sender:    sender,
		Message:   req.Message,
		Timestamp: clock(),
		Avatar:    srv.dir.Avatar(sender),
	})
	s.queueOut(protocol.Response{Success: true, Message: "Message sent"})
}

func (srv *Server) handleTyping(s *Session, req *protocol.Request) {
	sender := s.user()
	if sender == "" {
		return
	}
	srv.router.Unicast(req.Recipient, protocol.TypingIndicator{
		Type:     protocol.EventTypingIndicator,
		Sender:   sender,
		IsTyping: req.IsTyping,
	})
}

// ---------------------------------------------------------------------------
// Group handlers
// ---------------------------------------------------------------------------

func (srv *Server) handleCreateGroup(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	groupID := srv.dir.CreateGroup(username, req.GroupName)
	srv.log.Info("group created", "group", groupID, "name", req.GroupName, "admin", username)
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Group %q created", req.GroupName),
		GroupID: groupID,
	})
}

func (srv *Server) handleJoinGroup(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	name, others, err := srv.dir.JoinGroup(username, req.GroupID)
	if err != nil {
		srv.fail(s, err.Error())
		return
	}
	srv.router.Multicast(others, protocol.GroupNotification{
		Type:      protocol.EventGroupNotification,
		Message:   fmt.Sprintf("%s joined the group", username),
		Timestamp: clock(),
	})
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Joined group %q", name),
	})
}

func (srv *Server) handleLeaveGroup(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	name, remaining, err := srv.dir.LeaveGroup(username, req.GroupID)
	if err != nil {
		srv.fail(s, err.Error())
		return
	}
	srv.router.Multicast(remaining, protocol.GroupNotification{
		Type:      protocol.EventGroupNotification,
		Message:   fmt.Sprintf("%s left the group", username),
		Timestamp: clock(),
	})
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Left group %q", name),
	})
}

func (srv *Server) handleAddFriendToGroup(s *Session, req *protocol.Request) {
	username, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if req.GroupID == "" || req.Friend == "" {
		srv.fail(s, "Missing group_id or friend")
		return
	}
	name, members, count, err := srv.dir.AddMember(username, req.GroupID, req.Friend)
	if err != nil {
		srv.fail(s, err.Error())
		return
	}
	srv.router.Multicast(members, protocol.GroupNotification{
		Type:      protocol.EventGroupNotification,
		Message:   fmt.Sprintf("%s was added to the group by %s", req.Friend, username),
		Timestamp: clock(),
	})
	srv.router.Unicast(req.Friend, protocol.GroupAdded{
		Type:        protocol.EventGroupAdded,
		GroupID:     req.GroupID,
		Name:        name,
		MemberCount: count,
	})
	s.queueOut(protocol.Response{
		Success: true,
		Message: fmt.Sprintf("Added %s to group %q", req.Friend, name),
		Action:  protocol.ActionAddFriend,
	})
}

func (srv *Server) handleSendGroupMessage(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	name, others, member := srv.dir.GroupFanout(sender, req.GroupID)
	if !member {
		srv.fail(s, "Group not found or not a member")
		return
	}
	srv.router.Multicast(others, protocol.GroupMessage{
		Type:      protocol.EventGroupMessage,
		GroupID:   req.GroupID,
		GroupName: name,
		Sender:    sender,
		Message:   req.Message,
		Timestamp: clock(),
		Avatar:    srv.dir.Avatar(sender),
	})
	s.queueOut(protocol.Response{Success: true, Message: "Message sent to group"})
}

func (srv *Server) handleGetGroups(s *Session) {
	username := s.user()
	if username == "" {
		s.queueOut(protocol.GroupsReply{Groups: []protocol.GroupSummary{}})
		return
	}
	s.queueOut(protocol.GroupsReply{Groups: srv.dir.GroupsOf(username)})
}

// ---------------------------------------------------------------------------
// Event fan-out
// ---------------------------------------------------------------------------

func (srv *Server) notifyStatus(username, status string, watchers []string) {
	srv.router.Multicast(watchers, protocol.StatusUpdate{
		Type:     protocol.EventStatusUpdate,
		Username: username,
		Status:   status,
	})
}

func (srv *Server) broadcastProfile(username string, profile protocol.Profile, targets []string) {
	srv.router.Multicast(targets, protocol.ProfileUpdate{
		Type:     protocol.EventProfileUpdate,
		Username: username,
		Nickname: profile.Nickname,
		Avatar:   profile.Avatar,
		Status:   profile.Status,
	})
}
