package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"salesbridge/internal/helper"
	"salesbridge/internal/model"
	"salesbridge/internal/wa"
)

// DeleteScope selects the delete semantics.
type DeleteScope string

const (
	// DeleteForSelf removes the message only from this tenant's history.
	DeleteForSelf DeleteScope = "self"
	// DeleteForEveryone revokes the message at the counterparty too.
	DeleteForEveryone DeleteScope = "everyone"
)

// connectedHandle is the relay precondition: every action needs a live,
// paired handle. Fails fast with ErrNotConnected before touching anything.
func (r *Registry) connectedHandle(tenantID string) (wa.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[tenantID]
	if !ok {
		return nil, ErrNotConnected
	}
	if sess.Status != model.StatusConnected || sess.Handle == nil {
		return nil, ErrNotConnected
	}
	return sess.Handle, nil
}

// mapRelayErr folds context expiry into the typed timeout condition.
func mapRelayErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// SendText relays one outbound text. dedupeKey makes retries safe: a send
// that timed out may still have gone through, so a retry carrying the same
// key returns the stored outcome instead of double-sending. The recipient is
// verified against the live client first; sending to an unregistered number
// would otherwise vanish without an error. Success counts as a liveness
// touch; a timeout touches nothing and leaves the session state alone.
func (r *Registry) SendText(ctx context.Context, tenantID, toJID, body, dedupeKey string) (*model.Message, error) {
	if dedupeKey != "" {
		if prev, err := r.stores.Messages.ByDedupeKey(tenantID, dedupeKey); err == nil {
			log.Printf("✓ Duplicate send suppressed for tenant %s (key %s)", tenantID, dedupeKey)
			return prev, nil
		} else if !errors.Is(err, model.ErrMessageNotFound) {
			return nil, err
		}
	}

	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
	defer cancel()

	onNetwork, err := handle.IsOnWhatsApp(callCtx, helper.ExtractPhoneFromJID(toJID))
	if err != nil {
		return nil, mapRelayErr(err)
	}
	if !onNetwork {
		return nil, ErrRecipientNotFound
	}

	res, err := handle.SendText(callCtx, toJID, body)
	if err != nil {
		return nil, mapRelayErr(err)
	}

	msg := &model.Message{
		TenantID:     tenantID,
		MessageID:    res.MessageID,
		Counterparty: toJID,
		Direction:    model.DirectionOutgoing,
		Body:         body,
		SentAt:       res.Timestamp,
	}
	if dedupeKey != "" {
		msg.DedupeKey = sql.NullString{String: dedupeKey, Valid: true}
	}
	if err := r.stores.Messages.Insert(msg); err != nil {
		log.Printf("⚠ Failed to persist sent message for tenant %s: %v", tenantID, err)
	}

	_ = r.Touch(tenantID)
	return msg, nil
}

// EditMessage relays an edit and applies it to the stored row only after the
// remote side accepted it.
func (r *Registry) EditMessage(ctx context.Context, tenantID, toJID, messageID, body string) error {
	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return err
	}

	if _, err := r.stores.Messages.ByID(tenantID, messageID); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
	defer cancel()

	if err := handle.EditText(callCtx, toJID, messageID, body); err != nil {
		return mapRelayErr(err)
	}

	if err := r.stores.Messages.UpdateBody(tenantID, messageID, body); err != nil {
		log.Printf("⚠ Failed to persist edit for tenant %s: %v", tenantID, err)
	}

	_ = r.Touch(tenantID)
	return nil
}

// DeleteMessage applies the scoped delete semantics. Delete-for-everyone
// revokes remotely and redacts the stored row (the row survives, blanked).
// Delete-for-self is local-only: the row is removed and the handle is never
// called, though the connected precondition still applies.
func (r *Registry) DeleteMessage(ctx context.Context, tenantID, toJID, messageID string, scope DeleteScope) error {
	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return err
	}

	if _, err := r.stores.Messages.ByID(tenantID, messageID); err != nil {
		return err
	}

	switch scope {
	case DeleteForEveryone:
		callCtx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
		defer cancel()

		if err := handle.RevokeMessage(callCtx, toJID, messageID); err != nil {
			return mapRelayErr(err)
		}
		if err := r.stores.Messages.Redact(tenantID, messageID); err != nil {
			log.Printf("⚠ Failed to redact message for tenant %s: %v", tenantID, err)
		}

	case DeleteForSelf:
		if err := r.stores.Messages.Delete(tenantID, messageID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown delete scope %q", scope)
	}

	_ = r.Touch(tenantID)
	return nil
}

// ReactToMessage relays an emoji reaction. An empty emoji clears a previous
// reaction, mirroring the client behavior.
func (r *Registry) ReactToMessage(ctx context.Context, tenantID, toJID, messageID, emoji string) error {
	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
	defer cancel()

	if err := handle.React(callCtx, toJID, messageID, emoji); err != nil {
		return mapRelayErr(err)
	}

	if err := r.stores.Messages.SetReaction(tenantID, messageID, emoji); err != nil {
		log.Printf("⚠ Failed to persist reaction for tenant %s: %v", tenantID, err)
	}

	_ = r.Touch(tenantID)
	return nil
}

// ListContacts reads the live contact surface with the bulk timeout. Read
// only, so a transient non-timeout failure is retried twice with a linear
// backoff; destructive actions never get that treatment.
func (r *Registry) ListContacts(ctx context.Context, tenantID string) ([]wa.ContactEntry, error) {
	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return nil, err
	}

	var entries []wa.ContactEntry
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.BulkTimeout)
		entries, err = handle.Contacts(callCtx)
		cancel()

		if err == nil {
			break
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		if attempt >= 2 {
			return nil, err
		}
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}

	_ = r.Touch(tenantID)
	return entries, nil
}

// VerifyRecipient checks a phone number against the live client before a
// send, the same pre-flight the dashboards use.
func (r *Registry) VerifyRecipient(ctx context.Context, tenantID, phone string) (bool, error) {
	handle, err := r.connectedHandle(tenantID)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
	defer cancel()

	ok, err := handle.IsOnWhatsApp(callCtx, phone)
	if err != nil {
		return false, mapRelayErr(err)
	}
	return ok, nil
}
