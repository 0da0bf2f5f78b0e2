package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"salesbridge/internal/service"
)

type initSessionRequest struct {
	// Force abandons a stale persisted connection and starts fresh pairing.
	Force bool `json:"force"`
}

// InitPairing memulai (atau melanjutkan) proses pairing untuk tenant.
// Idempotent: kalau pairing sedang berjalan, record yang sama dikembalikan.
func InitPairing(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, companyID := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		// Body opsional; tanpa body berarti force=false.
		req := new(initSessionRequest)
		_ = c.Bind(req)

		view, err := reg.GetOrCreate(c.Request().Context(), tenantID, companyID, req.Force)
		switch {
		case errors.Is(err, service.ErrAlreadyConnected):
			// Bukan error buat client: session sudah siap dipakai.
			return SuccessResponse(c, http.StatusOK, "Session already connected", view)
		case errors.Is(err, service.ErrNeedsReconnect):
			return ErrorResponse(c, http.StatusConflict,
				"Stored connection is stale after restart. Re-initialize with force=true to pair again.",
				"NEEDS_RECONNECT", "")
		case errors.Is(err, service.ErrPairingFailed):
			return ErrorResponse(c, http.StatusBadGateway, "Failed to start pairing", "PAIRING_FAILED", err.Error())
		case err != nil:
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to initialize session", "INTERNAL_ERROR", err.Error())
		}

		return SuccessResponse(c, http.StatusAccepted, "Pairing started", view)
	}
}

// GetSessionStatus mengembalikan snapshot lengkap: status pairing, kode QR
// terakhir, dan progress sync.
func GetSessionStatus(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		view, needsReconnect, err := reg.Status(tenantID)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "No session for this tenant", "SESSION_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to read session status", "INTERNAL_ERROR", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Session status", map[string]interface{}{
			"session":        view,
			"needsReconnect": needsReconnect,
		})
	}
}

// Heartbeat menandai tenant masih aktif supaya reaper tidak meng-evict.
func Heartbeat(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		if err := reg.Touch(tenantID); err != nil {
			return ErrorResponse(c, http.StatusNotFound, "No session for this tenant", "SESSION_NOT_FOUND", "")
		}

		return SuccessResponse(c, http.StatusOK, "Heartbeat recorded", nil)
	}
}

// Disconnect melakukan logout kooperatif lalu melepas session.
func Disconnect(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		if err := reg.Remove(c.Request().Context(), tenantID); err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "No session for this tenant", "SESSION_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect", "INTERNAL_ERROR", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Session disconnected", nil)
	}
}

// TriggerSync meminta sync kontak. Kalau sedang berjalan, progress sekarang
// yang dikembalikan, bukan error.
func TriggerSync(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		err := reg.StartSync(c.Request().Context(), tenantID)
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			if view, ok := reg.ViewOf(tenantID); ok {
				return SuccessResponse(c, http.StatusOK, "Sync already in progress", view)
			}
			return SuccessResponse(c, http.StatusOK, "Sync already in progress", nil)
		case errors.Is(err, service.ErrSessionNotFound):
			return ErrorResponse(c, http.StatusNotFound, "No session for this tenant", "SESSION_NOT_FOUND", "")
		case errors.Is(err, service.ErrNotConnected):
			return ErrorResponse(c, http.StatusConflict, "Session is not connected", "NOT_CONNECTED", "")
		case err != nil:
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to start sync", "INTERNAL_ERROR", err.Error())
		}

		return SuccessResponse(c, http.StatusAccepted, "Sync started", nil)
	}
}

// ListConnectedSessions is the fleet-wide admin view, served from live
// registry state.
func ListConnectedSessions(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessions := reg.ListConnected()
		return SuccessResponse(c, http.StatusOK, "Connected sessions", map[string]interface{}{
			"total":    len(sessions),
			"sessions": sessions,
		})
	}
}
