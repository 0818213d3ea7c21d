package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"beaconhealth.org/internal/identity"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/obs"
)

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var d messaging.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.svc.Messages.SendMessage(r.Context(), d)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.MessageSent(string(m.SenderRole), string(m.Priority))
	a.audit(r.Context(), "message.send", map[string]any{
		"message_id":     m.ID,
		"sender_role":    m.SenderRole,
		"sender_id":      m.SenderID,
		"recipient_role": m.RecipientRole,
		"recipient_id":   m.RecipientID,
		"priority":       m.Priority,
	})
	w.Header().Set("Location", "/v1/messages/"+m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) inbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := messaging.InboxQuery{ParticipantID: strings.TrimSpace(q.Get("participant_id"))}
	if query.ParticipantID == "" {
		writeError(w, r, http.StatusBadRequest, "participant_id query parameter is required")
		return
	}
	if raw := q.Get("role"); raw != "" {
		role, err := identity.ParseRole("role", raw)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		query.Role = role
	}
	if raw := q.Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		query.UnreadOnly = unread
	}
	msgs, err := a.svc.Messages.Inbox(r.Context(), query)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(msgs))
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.Messages.MarkRead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	participantID := strings.TrimSpace(r.URL.Query().Get("participant_id"))
	if participantID == "" {
		writeError(w, r, http.StatusBadRequest, "participant_id query parameter is required")
		return
	}
	n, err := a.svc.Messages.UnreadCount(r.Context(), participantID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participant_id": participantID,
		"unread":         n,
	})
}
