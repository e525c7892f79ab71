package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aretw0/chatflow/pkg/adapters/whatsapp"
	"github.com/aretw0/chatflow/pkg/domain"
)

const maxWebhookBytes = 1 << 20

// VerifyWebhook handles GET /webhook, the subscription handshake.
func (s *Server) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.Verify(r.URL.Query(), s.verifyToken)
	if !ok {
		s.logger.Warn("webhook verification failed", "mode", r.URL.Query().Get("hub.mode"))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// ReceiveWebhook handles POST /webhook.
//
// Notifications without a usable message are acknowledged with 200. Unknown
// channels and inactive projects answer 404. A busy session answers 503 so the
// channel redelivers; other failures answer 500.
func (s *Server) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	in, ok, err := whatsapp.ParseWebhook(body)
	switch {
	case errors.Is(err, whatsapp.ErrUnknownObject):
		w.WriteHeader(http.StatusNotFound)
		return
	case err != nil:
		w.WriteHeader(http.StatusBadRequest)
		return
	case !ok:
		w.WriteHeader(http.StatusOK)
		return
	}

	// Processing outlives a dropped connection; the session must be saved once messages went out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.handleTimeout)
	defer cancel()

	projectID, err := s.engine.ResolveChannel(ctx, in.PhoneNumberID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			s.logger.Warn("webhook for unknown channel", "phone_number_id", in.PhoneNumberID)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.logger.Error("channel lookup failed", "phone_number_id", in.PhoneNumberID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	_, err = s.engine.Handle(ctx, domain.InboundEvent{
		ProjectID:         projectID,
		SenderID:          in.From,
		MessageID:         in.MessageID,
		Text:              in.Text,
		ButtonSelectionID: in.ButtonReplyID,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrFlowNotActive):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionLockTimeout):
		w.WriteHeader(http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrInputTooLarge), errors.Is(err, domain.ErrInvalidUTF8):
		// Redelivery would be rejected again.
		s.logger.Warn("inbound message rejected", "project_id", projectID, "sender_id", in.From, "err", err)
		w.WriteHeader(http.StatusOK)
	default:
		s.logger.Error("webhook processing failed", "project_id", projectID, "sender_id", in.From, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
