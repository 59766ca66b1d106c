package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/hub"
	"cipherchat/internal/repository"
)

func caller(r *http.Request) domain.UserID {
	id, _ := UserIDFromCtx(r.Context())
	return id
}

func invalid(msg string) error { return errs.Wrap(errs.ErrValidation, errors.New(msg)) }

func forbidden(msg string) error { return errs.Wrap(errs.ErrUnauthorized, errors.New(msg)) }

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// member loads group id and checks that user belongs to it.
func (s *Server) member(ctx context.Context, id string, user domain.UserID) (domain.Group, error) {
	g, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	if !g.HasMember(user) {
		return domain.Group{}, forbidden("not a member of this group")
	}
	return g, nil
}

func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	self := caller(r)

	var req domain.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case (req.RecipientID == "") == (req.GroupID == ""):
		s.writeError(w, r, invalid("exactly one of recipient_id or group_id is required"))
		return
	case req.EncryptedContent == "":
		s.writeError(w, r, invalid("empty encrypted_content"))
		return
	case !req.MessageType.Valid():
		s.writeError(w, r, invalid("unknown message_type"))
		return
	}

	var g domain.Group
	if req.GroupID != "" {
		var err error
		if g, err = s.member(ctx, req.GroupID, self); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	id, err := newID()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m := domain.Message{
		ID:             domain.MessageID(id),
		SenderID:       self,
		SenderDeviceID: req.SenderDeviceID,
		RecipientID:    req.RecipientID,
		GroupID:        req.GroupID,
		Content:        req.EncryptedContent,
		Type:           req.MessageType,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.messages.CreateMessage(ctx, m); err != nil {
		s.writeError(w, r, err)
		return
	}
	m.Status = domain.StatusSent

	if g.ID != "" {
		for _, u := range g.Members {
			if u != self {
				s.notify(u, domain.FrameNewMessage, m)
			}
		}
	} else {
		s.notify(m.RecipientID, domain.FrameNewMessage, m)
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	qs := r.URL.Query()
	q := repository.MessageQuery{
		Self:    caller(r),
		Peer:    domain.UserID(qs.Get("peer")),
		GroupID: qs.Get("group"),
	}
	if (q.Peer == "") == (q.GroupID == "") {
		s.writeError(w, r, invalid("exactly one of peer or group is required"))
		return
	}
	if v := qs.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.writeError(w, r, invalid("since must be RFC3339"))
			return
		}
		q.Since = t
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, invalid("limit must be a non-negative integer"))
			return
		}
		q.Limit = n
	}
	if q.GroupID != "" {
		if _, err := s.member(ctx, q.GroupID, q.Self); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	out, err := s.messages.ListMessages(ctx, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, out)
}

type receiptRequest struct {
	MessageID domain.MessageID   `json:"message_id"`
	Kind      domain.ReceiptKind `json:"type"`
}

func (s *Server) submitReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	self := caller(r)

	var req receiptRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.MessageID == "" || !req.Kind.Valid() {
		s.writeError(w, r, invalid("message_id and a type of delivered or read are required"))
		return
	}

	m, err := s.messages.GetMessage(ctx, req.MessageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case m.SenderID == self:
		s.writeError(w, r, forbidden("cannot acknowledge own message"))
		return
	case m.GroupID != "":
		if _, err := s.member(ctx, m.GroupID, self); err != nil {
			s.writeError(w, r, err)
			return
		}
	case m.RecipientID != self:
		s.writeError(w, r, forbidden("not a recipient of this message"))
		return
	}

	rc := domain.Receipt{MessageID: m.ID, UserID: self, Kind: req.Kind, Timestamp: s.now().UTC()}
	added, err := s.receipts.AddReceipt(ctx, rc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if added {
		s.notify(m.SenderID, domain.FrameMessageReceipt, rc)
	}
	writeJSON(w, http.StatusOK, rc)
}

func (s *Server) publishBundle(w http.ResponseWriter, r *http.Request) {
	self := caller(r)

	var b domain.PrekeyBundle
	if err := decode(w, r, &b); err != nil {
		s.writeError(w, r, err)
		return
	}
	if b.Empty() {
		s.writeError(w, r, invalid("identity_key and pre_key are required"))
		return
	}
	if b.UserID != "" && b.UserID != self {
		s.writeError(w, r, forbidden("bundle belongs to another user"))
		return
	}
	if b.PreKeyID == "" {
		b.PreKeyID = domain.PrekeyID(b.PreKey)
	}
	if err := s.keys.PublishBundle(r.Context(), self, b); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetchBundle(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(chi.URLParam(r, "userID"))
	b, err := s.keys.ClaimBundle(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type groupRequest struct {
	Name    string          `json:"name"`
	Members []domain.UserID `json:"members"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	self := caller(r)

	var req groupRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, r, invalid("empty group name"))
		return
	}

	id, err := newID()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g := domain.Group{ID: id, Name: name, CreatedBy: self, Members: []domain.UserID{self}, CreatedAt: s.now().UTC()}
	for _, m := range req.Members {
		if m != "" && !g.HasMember(m) {
			g.Members = append(g.Members, m)
		}
	}
	if err := s.groups.CreateGroup(r.Context(), g); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.member(r.Context(), chi.URLParam(r, "groupID"), caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	hub.ServeWS(s.hub, w, r, caller(r), s.log)
}
