package handler

import (
	"github.com/labstack/echo/v4"
)

// SuccessResponse writes the standard success envelope.
func SuccessResponse(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse writes the standard error envelope. errCode is the stable
// machine-readable code clients switch on; detail is optional context.
func ErrorResponse(c echo.Context, code int, message, errCode, detail string) error {
	errBody := map[string]string{
		"code": errCode,
	}
	if detail != "" {
		errBody["detail"] = detail
	}
	return c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
		"error":   errBody,
	})
}

// tenantFromContext reads the tenant identity resolved by the JWT middleware.
func tenantFromContext(c echo.Context) (tenantID, companyID string) {
	tenantID, _ = c.Get("tenant_id").(string)
	companyID, _ = c.Get("company_id").(string)
	return tenantID, companyID
}
