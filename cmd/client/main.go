// chatrelay terminal client.
//
// Screens
// -------
//   stateLogin – centered username form; Ctrl+R toggles register mode
//   stateChat  – full-screen chat with scrollable message viewport
//
// Conversations are selected with slash commands: /msg <user> picks a
// private conversation, /g <group_id> picks a group.  Plain input goes to
// the current conversation.  Type /help for the full command list.
//
// Concurrency
// -----------
//   A single goroutine reads newline-delimited JSON from the TCP connection
//   and forwards raw lines to the frames channel.  The Bubbletea event loop
//   consumes one frame at a time via waitForFrame (a tea.Cmd), immediately
//   queuing the next read after each frame is processed.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"chatrelay/internal/protocol"
)

// fileChunkSize is the raw chunk size for outgoing transfers, before base64.
const fileChunkSize = 48 * 1024

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(gray).
			Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	sysStyle     = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle      = lipgloss.NewStyle().Foreground(gray)
	myNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(blue)
	typingStyle  = lipgloss.NewStyle().Foreground(cyan).Italic(true)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverFrameMsg []byte      // a raw frame line arrived from the server
type disconnectedMsg struct{}   // server closed the connection
type statusNoteMsg string       // local note to show in the chat log

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateLogin appState = iota
	stateChat
)

// target is the conversation plain input goes to.
type target struct {
	group bool
	id    string // username or group_id
}

func (t target) String() string {
	if t.id == "" {
		return "no conversation (use /msg or /g)"
	}
	if t.group {
		return "group " + t.id
	}
	return "@" + t.id
}

// incomingFile accumulates the chunks of one transfer.
type incomingFile struct {
	filename string
	sender   string
	data     []byte
}

// frame is the union of every server-to-client frame shape.  Replies carry
// success, query replies carry one of results/contacts/groups, and events
// carry type.
type frame struct {
	Success *bool          `json:"success,omitempty"`
	Message string         `json:"message"`
	Profile *protocol.Profile `json:"profile,omitempty"`

	Results  []protocol.UserSummary  `json:"results,omitempty"`
	Contacts []protocol.UserSummary  `json:"contacts,omitempty"`
	Groups   []protocol.GroupSummary `json:"groups,omitempty"`

	Type        protocol.Event `json:"type"`
	Sender      string         `json:"sender"`
	Username    string         `json:"username"`
	OldUsername string         `json:"old_username"`
	NewUsername string         `json:"new_username"`
	Nickname    string         `json:"nickname"`
	Avatar      string         `json:"avatar"`
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	IsTyping    bool           `json:"is_typing"`

	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`

	TransferID string `json:"transfer_id"`
	Filename   string `json:"filename"`
	TotalSize  int64  `json:"total_size"`
	Seq        int    `json:"seq"`
	Data       string `json:"data"`
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	conn   net.Conn
	frames chan []byte // goroutine → bubbletea bridge

	state appState
	me    string // authenticated username

	// Login
	loginIsReg   bool
	loginField   textinput.Model
	pendingLogin string // username we are registering before logging in
	statusMsg    string

	// Chat
	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string
	current   target
	typing    string // "<user> is typing…" banner, or ""

	// Downloads
	downloadDir string
	transfers   map[string]*incomingFile

	width, height int
}

func newModel(conn net.Conn, frames chan []byte, downloadDir string) model {
	uf := textinput.New()
	uf.Placeholder = "username"
	uf.Focus()
	uf.CharLimit = 32
	uf.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Message or /command…"
	ci.CharLimit = 500

	return model{
		conn:        conn,
		frames:      frames,
		state:       stateLogin,
		loginField:  uf,
		chatInput:   ci,
		downloadDir: downloadDir,
		transfers:   make(map[string]*incomingFile),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForFrame(m.frames))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverFrameMsg:
		m = m.handleServerFrame([]byte(msg))
		return m, waitForFrame(m.frames)

	case statusNoteMsg:
		m.appendChat(sysStyle.Render("⚡ " + string(msg)))
		return m, nil

	case disconnectedMsg:
		m.statusMsg = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyCtrlR:
		m.loginIsReg = !m.loginIsReg
		m.statusMsg = ""
		return m, nil

	case tea.KeyEnter:
		user := strings.TrimSpace(m.loginField.Value())
		if user == "" {
			m.statusMsg = "username is required"
			return m, nil
		}
		if m.loginIsReg {
			m.pendingLogin = user
			send(m.conn, protocol.Request{Action: protocol.ActionRegister, Username: user})
		} else {
			m.pendingLogin = ""
			send(m.conn, protocol.Request{Action: protocol.ActionLogin, Username: user})
		}
		m.statusMsg = "Authenticating…"
		return m, nil
	}

	var cmd tea.Cmd
	m.loginField, cmd = m.loginField.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" {
			return m, nil
		}
		m.chatInput.Reset()
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.sendToCurrent(text), nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// sendToCurrent routes plain input to the selected conversation.
func (m model) sendToCurrent(text string) model {
	switch {
	case m.current.id == "":
		m.appendChat(errorStyle.Render("⚠ no conversation selected — /msg <user> or /g <group_id>"))
	case m.current.group:
		send(m.conn, protocol.Request{
			Action:  protocol.ActionSendGroupMsg,
			GroupID: m.current.id,
			Message: text,
		})
		m.appendChat(m.renderLine(m.me, text))
	default:
		send(m.conn, protocol.Request{
			Action:    protocol.ActionSendMessage,
			Recipient: m.current.id,
			Message:   text,
		})
		m.appendChat(m.renderLine(m.me, text))
	}
	return m
}

// runCommand interprets one /command line.
func (m model) runCommand(line string) (model, tea.Cmd) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/quit":
		return m, tea.Quit

	case "/help":
		m.appendChat(hintStyle.Render(strings.Join([]string{
			"/msg <user> [text]   /g <group_id> [text]   /add <user>   /rm <user>",
			"/contacts   /groups   /search <query>   /nick <name>   /avatar <glyph>",
			"/username <new>   /status <online|offline>   /group <name>   /join <gid>",
			"/leave <gid>   /invite <gid> <user>   /sendfile <user> <path>   /quit",
		}, "\n")))

	case "/msg":
		if len(args) < 1 {
			m.appendChat(errorStyle.Render("⚠ usage: /msg <user> [text]"))
			break
		}
		m.current = target{id: args[0]}
		if len(args) > 1 {
			return m.sendToCurrent(strings.Join(args[1:], " ")), nil
		}
		m.appendChat(sysStyle.Render("⚡ talking to " + m.current.String()))

	case "/g":
		if len(args) < 1 {
			m.appendChat(errorStyle.Render("⚠ usage: /g <group_id> [text]"))
			break
		}
		m.current = target{group: true, id: args[0]}
		if len(args) > 1 {
			return m.sendToCurrent(strings.Join(args[1:], " ")), nil
		}
		m.appendChat(sysStyle.Render("⚡ talking to " + m.current.String()))

	case "/add":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionAddContact, Username: args[0]})
		}

	case "/rm":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionRemoveContact, Username: args[0]})
		}

	case "/contacts":
		send(m.conn, protocol.Request{Action: protocol.ActionGetContacts})

	case "/groups":
		send(m.conn, protocol.Request{Action: protocol.ActionGetGroups})

	case "/search":
		send(m.conn, protocol.Request{Action: protocol.ActionSearchUsers, Query: strings.Join(args, " ")})

	case "/nick":
		if len(args) >= 1 {
			nick := strings.Join(args, " ")
			send(m.conn, protocol.Request{
				Action:  protocol.ActionUpdateProfile,
				Profile: &protocol.ProfilePatch{Nickname: &nick},
			})
		}

	case "/avatar":
		if len(args) == 1 {
			send(m.conn, protocol.Request{
				Action:  protocol.ActionUpdateProfile,
				Profile: &protocol.ProfilePatch{Avatar: &args[0]},
			})
		}

	case "/username":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionChangeUsername, NewUsername: args[0]})
		}

	case "/status":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionUpdateStatus, Status: args[0]})
		}

	case "/group":
		if len(args) >= 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionCreateGroup, GroupName: strings.Join(args, " ")})
		}

	case "/join":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionJoinGroup, GroupID: args[0]})
		}

	case "/leave":
		if len(args) == 1 {
			send(m.conn, protocol.Request{Action: protocol.ActionLeaveGroup, GroupID: args[0]})
		}

	case "/invite":
		if len(args) == 2 {
			send(m.conn, protocol.Request{Action: protocol.ActionAddFriend, GroupID: args[0], Friend: args[1]})
		}

	case "/sendfile":
		if len(args) != 2 {
			m.appendChat(errorStyle.Render("⚠ usage: /sendfile <user> <path>"))
			break
		}
		return m, sendFile(m.conn, args[0], args[1])

	default:
		m.appendChat(errorStyle.Render("⚠ unknown command " + cmd + " — /help"))
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Server frame handler
// ---------------------------------------------------------------------------

func (m model) handleServerFrame(data []byte) model {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return m
	}

	switch {
	case f.Type != "":
		return m.handleEvent(&f)
	case f.Results != nil:
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ %d user(s) found", len(f.Results))))
		for _, u := range f.Results {
			m.appendChat(fmt.Sprintf("   %s %s (%s) — %s", u.Avatar, u.Username, u.Nickname, u.Status))
		}
	case f.Contacts != nil:
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ %d contact(s)", len(f.Contacts))))
		for _, u := range f.Contacts {
			m.appendChat(fmt.Sprintf("   %s %s (%s) — %s", u.Avatar, u.Username, u.Nickname, u.Status))
		}
	case f.Groups != nil:
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ %d group(s)", len(f.Groups))))
		for _, g := range f.Groups {
			m.appendChat(fmt.Sprintf("   %s %q — %d member(s)", g.GroupID, g.Name, g.MemberCount))
		}
	case f.Success != nil:
		return m.handleReply(&f)
	}
	return m
}

func (m model) handleReply(f *frame) model {
	if !*f.Success {
		if m.state == stateLogin {
			m.statusMsg = f.Message
		} else {
			m.appendChat(errorStyle.Render("⚠ " + f.Message))
		}
		return m
	}

	switch {
	case f.Message == "Registration successful" && m.pendingLogin != "":
		// Registration does not log us in; follow up with a login.
		send(m.conn, protocol.Request{Action: protocol.ActionLogin, Username: m.pendingLogin})
		m.pendingLogin = ""
		m.statusMsg = "Registered, logging in…"

	case f.Message == "Login successful":
		m.me = strings.TrimSpace(m.loginField.Value())
		m.state = stateChat
		m.chatInput.Focus()
		m.appendChat(sysStyle.Render("⚡ logged in as " + m.me))
		m.appendChat(hintStyle.Render("  /help for commands"))

	case f.Message == "Username changed":
		m.me = f.NewUsername
		m.appendChat(sysStyle.Render("⚡ you are now " + m.me))

	default:
		note := f.Message
		if f.GroupID != "" {
			note += " (" + f.GroupID + ")"
		}
		m.appendChat(successStyle.Render("✔ " + note))
	}
	return m
}

func (m model) handleEvent(f *frame) model {
	switch f.Type {

	case protocol.EventPrivateMessage:
		m.typing = ""
		m.appendChat(tsStyle.Render("["+f.Timestamp+"]") + " " + f.Avatar + " " +
			peerStyle.Render(f.Sender) + ": " + f.Message)

	case protocol.EventGroupMessage:
		m.appendChat(tsStyle.Render("["+f.Timestamp+"]") + " " +
			sysStyle.Render("["+f.GroupName+"]") + " " + f.Avatar + " " +
			peerStyle.Render(f.Sender) + ": " + f.Message)

	case protocol.EventGroupNotification:
		m.appendChat(tsStyle.Render("["+f.Timestamp+"]") + " " + sysStyle.Render("⚡ "+f.Message))

	case protocol.EventTypingIndicator:
		if f.IsTyping {
			m.typing = f.Sender + " is typing…"
		} else {
			m.typing = ""
		}

	case protocol.EventStatusUpdate:
		m.appendChat(sysStyle.Render("⚡ " + f.Username + " is now " + f.Status))

	case protocol.EventProfileUpdate:
		m.appendChat(sysStyle.Render("⚡ " + f.Username + " updated their profile: " +
			f.Avatar + " " + f.Nickname))

	case protocol.EventUsernameChanged:
		m.appendChat(sysStyle.Render("⚡ " + f.OldUsername + " is now known as " + f.NewUsername))
		if !m.current.group && m.current.id == f.OldUsername {
			m.current.id = f.NewUsername
		}

	case protocol.EventGroupAdded:
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ you were added to %q (%s, %d members)",
			f.Name, f.GroupID, f.MemberCount)))

	case protocol.EventFileMessage, protocol.EventGroupFileMessage:
		m.saveInline(f)

	case protocol.EventFileStart, protocol.EventGroupFileStart:
		m.transfers[f.TransferID] = &incomingFile{filename: f.Filename, sender: f.Sender}
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ %s is sending %s (%d bytes)",
			f.Sender, f.Filename, f.TotalSize)))

	case protocol.EventFileChunk, protocol.EventGroupFileChunk:
		if tr, ok := m.transfers[f.TransferID]; ok {
			if raw, err := base64.StdEncoding.DecodeString(f.Data); err == nil {
				tr.data = append(tr.data, raw...)
			}
		}

	case protocol.EventFileEnd, protocol.EventGroupFileEnd:
		if tr, ok := m.transfers[f.TransferID]; ok {
			delete(m.transfers, f.TransferID)
			path := filepath.Join(m.downloadDir, filepath.Base(tr.filename))
			if err := os.WriteFile(path, tr.data, 0o644); err != nil {
				m.appendChat(errorStyle.Render("⚠ save " + tr.filename + ": " + err.Error()))
			} else {
				m.appendChat(successStyle.Render("✔ received " + tr.filename + " from " +
					tr.sender + " → " + path))
			}
		}
	}
	return m
}

// saveInline writes a one-shot file_message payload straight to disk.
func (m *model) saveInline(f *frame) {
	raw, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		m.appendChat(errorStyle.Render("⚠ corrupted file from " + f.Sender))
		return
	}
	path := filepath.Join(m.downloadDir, filepath.Base(f.Filename))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		m.appendChat(errorStyle.Render("⚠ save " + f.Filename + ": " + err.Error()))
		return
	}
	m.appendChat(successStyle.Render("✔ received " + f.Filename + " from " + f.Sender + " → " + path))
}

// renderLine renders one of our own outgoing messages.
func (m model) renderLine(name, text string) string {
	return tsStyle.Render("[now]") + " " + myNameStyle.Render(name) + ": " + text
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

func (m model) View() string {
	if m.state == stateLogin {
		return m.viewLogin()
	}
	return m.viewChat()
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	mode := "Login"
	other := "Register"
	if m.loginIsReg {
		mode, other = "Register", "Login"
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  chatrelay  "),
		"",
		labelStyle.Render("Username")+"  "+m.loginField.View(),
		"",
		hintStyle.Render(fmt.Sprintf("Enter: %s   Ctrl+R: switch to %s   Ctrl+C: quit", mode, other)),
		"",
		m.renderStatus(),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	status := m.current.String()
	if m.typing != "" {
		status += "  ·  " + typingStyle.Render(m.typing)
	}
	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" chatrelay  ·  %s  ·  %s  ·  PgUp/Dn: Scroll  Ctrl+C: Quit", m.me, status))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

func (m model) renderStatus() string {
	if m.statusMsg == "" {
		return ""
	}
	if strings.Contains(m.statusMsg, "…") {
		return hintStyle.Render(m.statusMsg)
	}
	return errorStyle.Render(m.statusMsg)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForFrame returns a tea.Cmd that blocks until the next frame arrives.
// When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForFrame(ch <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverFrameMsg(data)
	}
}

// send writes req as a newline-terminated JSON line to conn.
func send(conn net.Conn, req protocol.Request) {
	data, err := protocol.Encode(req)
	if err != nil {
		return
	}
	conn.Write(data)
}

// sendFile streams path to user as a chunked transfer: one start frame, a
// base64 chunk per fileChunkSize raw bytes, one end frame.
func sendFile(conn net.Conn, user, path string) tea.Cmd {
	return func() tea.Msg {
		raw, err := os.ReadFile(path)
		if err != nil {
			return statusNoteMsg("sendfile: " + err.Error())
		}
		transferID := uuid.NewString()
		send(conn, protocol.Request{
			Action:     protocol.ActionFileStart,
			Recipient:  user,
			TransferID: transferID,
			Filename:   filepath.Base(path),
			TotalSize:  int64(len(raw)),
		})
		seq := 0
		for off := 0; off < len(raw); off += fileChunkSize {
			end := off + fileChunkSize
			if end > len(raw) {
				end = len(raw)
			}
			send(conn, protocol.Request{
				Action:     protocol.ActionFileChunk,
				Recipient:  user,
				TransferID: transferID,
				Seq:        seq,
				Data:       base64.StdEncoding.EncodeToString(raw[off:end]),
			})
			seq++
		}
		send(conn, protocol.Request{
			Action:     protocol.ActionFileEnd,
			Recipient:  user,
			TransferID: transferID,
		})
		return statusNoteMsg("sending " + filepath.Base(path) + " to " + user +
			" (" + strconv.Itoa(seq) + " chunks)")
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	addr := flag.String("addr", "localhost:12345", "broker address")
	downloads := flag.String("downloads", "./downloads", "directory for received files")
	flag.Parse()

	if err := os.MkdirAll(*downloads, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "downloads dir: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// frames bridges the TCP reader goroutine and the Bubbletea event loop.
	frames := make(chan []byte, 64)

	// Reader goroutine: TCP → frames channel.
	go func() {
		defer close(frames)
		dec := protocol.NewDecoder(conn)
		for {
			line, err := dec.Next()
			if err != nil {
				return
			}
			buf := make([]byte, len(line))
			copy(buf, line)
			frames <- buf
		}
	}()

	p := tea.NewProgram(
		newModel(conn, frames, *downloads),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
