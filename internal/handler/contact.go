package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"salesbridge/internal/service"
	"salesbridge/internal/wa"
)

// GetContacts membaca daftar kontak langsung dari client (live), dengan
// pagination dan pencarian sederhana di sisi server.
func GetContacts(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		entries, err := reg.ListContacts(c.Request().Context(), tenantID)
		if err != nil {
			return relayError(c, err)
		}

		// Filter pencarian: cocokkan nama atau nomor.
		search := strings.ToLower(strings.TrimSpace(c.QueryParam("search")))
		if search != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if strings.Contains(strings.ToLower(e.Name), search) || strings.Contains(e.Phone, search) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
		})

		page, _ := strconv.Atoi(c.QueryParam("page"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		if limit < 1 || limit > 500 {
			limit = 100
		}

		total := len(entries)
		start := (page - 1) * limit
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}

		return SuccessResponse(c, http.StatusOK, "Contact list", map[string]interface{}{
			"total":    total,
			"page":     page,
			"limit":    limit,
			"contacts": entries[start:end],
		})
	}
}

// ExportContacts mengunduh seluruh kontak sebagai file xlsx atau csv.
func ExportContacts(reg *service.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, _ := tenantFromContext(c)
		if tenantID == "" {
			return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "")
		}

		format := c.QueryParam("format")
		if format == "" {
			format = "xlsx"
		}
		if format != "xlsx" && format != "csv" {
			return ErrorResponse(c, http.StatusBadRequest, "format must be xlsx or csv", "INVALID_FORMAT", "")
		}

		entries, err := reg.ListContacts(c.Request().Context(), tenantID)
		if err != nil {
			return relayError(c, err)
		}

		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
		})

		filename := fmt.Sprintf("contacts_%s_%s.%s", tenantID, time.Now().Format("20060102_150405"), format)

		if format == "csv" {
			return exportContactsCSV(c, filename, entries)
		}
		return exportContactsXLSX(c, filename, entries)
	}
}

func exportContactsCSV(c echo.Context, filename string, entries []wa.ContactEntry) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response().Writer)
	defer w.Flush()

	if err := w.Write([]string{"Name", "Phone", "JID", "Business"}); err != nil {
		return err
	}
	for _, e := range entries {
		business := "no"
		if e.IsBusiness {
			business = "yes"
		}
		if err := w.Write([]string{e.Name, e.Phone, e.JID, business}); err != nil {
			return err
		}
	}
	return nil
}

func exportContactsXLSX(c echo.Context, filename string, entries []wa.ContactEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Contacts"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Name", "Phone", "JID", "Business"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, e := range entries {
		business := "no"
		if e.IsBusiness {
			business = "yes"
		}
		values := []interface{}{e.Name, e.Phone, e.JID, business}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Response().WriteHeader(http.StatusOK)

	return f.Write(c.Response().Writer)
}
