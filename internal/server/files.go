package server

import (
	"encoding/base64"

	"chatrelay/internal/protocol"
)

// File relay.  The broker never buffers transfer bodies: a chunked transfer
// is a stateless sequence of start/chunk/end frames sharing a sender-chosen
// transfer_id.  Size and recipient are validated only at the start frame;
// chunk and end frames need only a bound sender (and, for group transfers,
// the sender's group membership) and are relayed as-is.  Chunk and end
// frames produce no responses; chunks whose
// recipient is gone are dropped silently and recipients must tolerate
// orphans.

func (srv *Server) handleFileStart(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if req.Recipient == "" || req.Filename == "" {
		srv.fail(s, "Missing fields")
		return
	}
	if req.TotalSize > srv.cfg.Limits.MaxFileSize {
		srv.fail(s, "File too large")
		return
	}
	target := srv.router.Lookup(req.Recipient)
	if target == nil {
		srv.fail(s, "Recipient not online")
		return
	}
	target.queueOut(protocol.FileStart{
		Type:       protocol.EventFileStart,
		TransferID: req.TransferID,
		Filename:   req.Filename,
		TotalSize:  req.TotalSize,
		Sender:     sender,
		Timestamp:  clock(),
	})
}

func (srv *Server) handleFileChunk(s *Session, req *protocol.Request) {
	sender := s.user()
	if sender == "" {
		return
	}
	srv.router.Unicast(req.Recipient, protocol.FileChunk{
		Type:       protocol.EventFileChunk,
		TransferID: req.TransferID,
		Seq:        req.Seq,
		Data:       req.Data,
		Sender:     sender,
	})
}

func (srv *Server) handleFileEnd(s *Session, req *protocol.Request) {
	sender := s.user()
	if sender == "" {
		return
	}
	srv.router.Unicast(req.Recipient, protocol.FileEnd{
		Type:       protocol.EventFileEnd,
		TransferID: req.TransferID,
		Sender:     sender,
	})
}

func (srv *Server) handleGroupFileStart(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	_, others, member := srv.dir.GroupFanout(sender, req.GroupID)
	if !member {
		srv.fail(s, "Not in group")
		return
	}
	if req.TotalSize > srv.cfg.Limits.MaxFileSize {
		srv.fail(s, "File too large")
		return
	}
	srv.router.Multicast(others, protocol.FileStart{
		Type:       protocol.EventGroupFileStart,
		TransferID: req.TransferID,
		GroupID:    req.GroupID,
		Filename:   req.Filename,
		TotalSize:  req.TotalSize,
		Sender:     sender,
		Timestamp:  clock(),
	})
}

func (srv *Server) handleGroupFileChunk(s *Session, req *protocol.Request) {
	sender := s.user()
	if sender == "" {
		return
	}
	_, others, member := srv.dir.GroupFanout(sender, req.GroupID)
	if !member {
		return
	}
	srv.router.Multicast(others, protocol.FileChunk{
		Type:       protocol.EventGroupFileChunk,
		TransferID: req.TransferID,
		GroupID:    req.GroupID,
		Seq:        req.Seq,
		Data:       req.Data,
		Sender:     sender,
	})
}

func (srv *Server) handleGroupFileEnd(s *Session, req *protocol.Request) {
	sender := s.user()
	if sender == "" {
		return
	}
	_, others, member := srv.dir.GroupFanout(sender, req.GroupID)
	if !member {
		return
	}
	srv.router.Multicast(others, protocol.FileEnd{
		Type:       protocol.EventGroupFileEnd,
		TransferID: req.TransferID,
		GroupID:    req.GroupID,
		Sender:     sender,
	})
}

// ---------------------------------------------------------------------------
// One-shot file transfers
// ---------------------------------------------------------------------------

// handleSendFile delivers a small file in a single frame.  Unlike the
// chunked relay the payload is validated: it must be well-formed base64 and
// decode to at most the inline size cap.
func (srv *Server) handleSendFile(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if req.Recipient == "" || req.Filename == "" || req.Data == "" {
		srv.fail(s, "Missing file data")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		srv.fail(s, "Corrupted file data")
		return
	}
	if int64(len(raw)) > srv.cfg.Limits.MaxInlineFileSize {
		srv.fail(s, "File too large (max 200KB)")
		return
	}
	target := srv.router.Lookup(req.Recipient)
	if target == nil {
		srv.fail(s, "Recipient not online")
		return
	}
	target.queueOut(protocol.FileMessage{
		Type:      protocol.EventFileMessage,
		Sender:    sender,
		Filename:  req.Filename,
		Data:      req.Data,
		Timestamp: clock(),
		Avatar:    srv.dir.Avatar(sender),
	})
	s.queueOut(protocol.Response{Success: true, Message: "File sent"})
}

func (srv *Server) handleSendGroupFile(s *Session, req *protocol.Request) {
	sender, ok := srv.requireUser(s)
	if !ok {
		return
	}
	if req.GroupID == "" || req.Filename == "" || req.Data == "" {
		srv.fail(s, "Missing file data")
		return
	}
	name, others, member := srv.dir.GroupFanout(sender, req.GroupID)
	if !member {
		srv.fail(s, "Not in group")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		srv.fail(s, "Corrupted file data")
		return
	}
	if int64(len(raw)) > srv.cfg.Limits.MaxInlineFileSize {
		srv.fail(s, "File too large (max 200KB)")
		return
	}
	srv.router.Multicast(others, protocol.FileMessage{
		Type:      protocol.EventGroupFileMessage,
		GroupID:   req.GroupID,
		GroupName: name,
		Sender:    sender,
		Filename:  req.Filename,
		Data:      req.Data,
		Timestamp: clock(),
		Avatar:    srv.dir.Avatar(sender),
	})
	s.queueOut(protocol.Response{Success: true, Message: "File sent to group"})
}
