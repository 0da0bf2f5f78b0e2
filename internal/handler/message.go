package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"salesbridge/internal/helper"
	"salesbridge/internal/model"
	"salesbridge/internal/service"
)

// relayError maps the typed relay conditions to stable HTTP responses.
func relayError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotConnected):
		return ErrorResponse(c, http.StatusConflict, "Session is not connected", "NOT_CONNECTED", "")
	case errors.Is(err, service.ErrTimeout):
		return ErrorResponse(c, http.StatusGatewayTimeout,
			"The action timed out. The outcome is unknown; retry with the same dedupeKey if applicable.",
			"TIMEOUT", "")
	case errors.Is(err, service.ErrRecipientNotFound):
		return ErrorResponse(c, http.StatusNotFound, "Recipient is not registered", "RECIPIENT_NOT_FOUND", "")
	case errors.Is(err, model.ErrMessageNotFound):
		return ErrorResponse(c, http.StatusNotFound, "Message not found", "MESSAGE_NOT_FOUND", "")
	default:
		return ErrorResponse(c, http.StatusInternalServerError, "Action failed", "INTERNAL_ERROR", err.Error())
	}
}

type sendMessageRequest struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	DedupeKey string `json:"dedupeKey,omitempty"`
}

// SendMessage merelay satu pesan teks keluar.
// dedupeKey bikin retry aman: kirim ulang dengan key yang sama setelah
// TIMEOUT mengembalikan hasil yang tersimpan, bukan kirim dobel.
func SendMessage(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		req := new(sendMessageRequest)
		if err := c.Bind(req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		}
		if req.To == "" || req.Body == "" {
			return ErrorResponse(c, http.StatusBadRequest, "to and body are required", "INVALID_BODY", "")
		}

		jid, err := helper.FormatPhoneNumber(req.To)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		}

		msg, err := reg.SendText(c.Request().Context(), tenantID, jid.String(), req.Body, req.DedupeKey)
		if err != nil {
			return relayError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Message sent", map[string]interface{}{
			"messageId": msg.MessageID,
			"to":        msg.Counterparty,
			"sentAt":    msg.SentAt,
		})
	}
}

type editMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// EditMessage merelay edit untuk pesan yang sudah terkirim.
func EditMessage(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		messageID := c.Param("messageId")
		req := new(editMessageRequest)
		if err := c.Bind(req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		}
		if messageID == "" || req.To == "" || req.Body == "" {
			return ErrorResponse(c, http.StatusBadRequest, "messageId, to and body are required", "INVALID_BODY", "")
		}

		jid, err := helper.FormatPhoneNumber(req.To)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		}

		if err := reg.EditMessage(c.Request().Context(), tenantID, jid.String(), messageID, req.Body); err != nil {
			return relayError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Message edited", nil)
	}
}

type deleteMessageRequest struct {
	To string `json:"to"`
}

// DeleteMessage menghapus pesan sesuai scope:
//   - everyone: revoke di sisi lawan bicara, row lokal di-redact
//   - self: hanya hapus row lokal, handle tidak dipanggil
func DeleteMessage(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		messageID := c.Param("messageId")
		scope := service.DeleteScope(c.QueryParam("scope"))
		if scope == "" {
			scope = service.DeleteForSelf
		}
		if scope != service.DeleteForSelf && scope != service.DeleteForEveryone {
			return ErrorResponse(c, http.StatusBadRequest, "scope must be self or everyone", "INVALID_SCOPE", "")
		}

		req := new(deleteMessageRequest)
		_ = c.Bind(req)

		toJID := ""
		if scope == service.DeleteForEveryone {
			if req.To == "" {
				return ErrorResponse(c, http.StatusBadRequest, "to is required for scope=everyone", "INVALID_BODY", "")
			}
			jid, err := helper.FormatPhoneNumber(req.To)
			if err != nil {
				return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
			}
			toJID = jid.String()
		}

		if err := reg.DeleteMessage(c.Request().Context(), tenantID, toJID, messageID, scope); err != nil {
			return relayError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Message deleted", map[string]interface{}{
			"scope": string(scope),
		})
	}
}

type reactRequest struct {
	To    string `json:"to"`
	Emoji string `json:"emoji"`
}

// ReactToMessage merelay reaksi emoji. Emoji kosong menghapus reaksi.
func ReactToMessage(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		messageID := c.Param("messageId")
		req := new(reactRequest)
		if err := c.Bind(req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		}
		if messageID == "" || req.To == "" {
			return ErrorResponse(c, http.StatusBadRequest, "messageId and to are required", "INVALID_BODY", "")
		}

		jid, err := helper.FormatPhoneNumber(req.To)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		}

		if err := reg.ReactToMessage(c.Request().Context(), tenantID, jid.String(), messageID, req.Emoji); err != nil {
			return relayError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Reaction sent", nil)
	}
}

// CheckRecipient memverifikasi nomor tujuan ke client live sebelum kirim.
func CheckRecipient(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		phone := c.QueryParam("phone")
		if phone == "" {
			return ErrorResponse(c, http.StatusBadRequest, "phone is required", "INVALID_BODY", "")
		}

		jid, err := helper.FormatPhoneNumber(phone)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		}

		registered, err := reg.VerifyRecipient(c.Request().Context(), tenantID, jid.User)
		if err != nil {
			return relayError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Recipient checked", map[string]interface{}{
			"phone":      jid.User,
			"registered": registered,
		})
	}
}

// GetMessageHistory membaca riwayat tersimpan dengan satu lawan bicara.
// Murni dari DB, tidak menyentuh handle.
func GetMessageHistory() echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		counterparty := c.Param("counterparty")
		if counterparty == "" {
			return ErrorResponse(c, http.StatusBadRequest, "counterparty is required", "INVALID_BODY", "")
		}

		jid, err := helper.FormatPhoneNumber(counterparty)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid phone number", "INVALID_PHONE", err.Error())
		}

		limit, _ := strconv.Atoi(c.QueryParam("limit"))

		messages, err := model.ListMessagesByCounterparty(tenantID, jid.String(), limit)
		if err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to read history", "INTERNAL_ERROR", err.Error())
		}

		out := make([]map[string]interface{}, 0, len(messages))
		for _, m := range messages {
			entry := map[string]interface{}{
				"messageId": m.MessageID,
				"direction": m.Direction,
				"body":      m.Body,
				"redacted":  m.Redacted,
				"sentAt":    m.SentAt,
			}
			if m.Reaction.Valid {
				entry["reaction"] = m.Reaction.String
			}
			out = append(out, entry)
		}

		return SuccessResponse(c, http.StatusOK, "Message history", map[string]interface{}{
			"counterparty": jid.String(),
			"total":        len(out),
			"messages":     out,
		})
	}
}
