package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"snaptrail/audit"
	"snaptrail/document"
	"snaptrail/errors"
)

func auditFilter(c *gin.Context) (audit.Filter, error) {
	f := audit.Filter{
		ContentType: c.Query("content_type"),
		DocumentID:  c.Query("document_id"),
		Operation:   document.Kind(c.Query("operation")),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.Errorf(errors.ErrCodeValidation, "invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}

// ListAudits GET /audits?content_type=&document_id=&operation=&limit=
func (h *Handler) ListAudits(c *gin.Context) {
	f, err := auditFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.audits.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

// ListRestorable GET /audits/restorable, same filters as ListAudits.
func (h *Handler) ListRestorable(c *gin.Context) {
	f, err := auditFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.audits.Restorable(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

// GetAudit GET /audits/:id
func (h *Handler) GetAudit(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, errors.Errorf(errors.ErrCodeValidation, "invalid audit id %q", c.Param("id")))
		return
	}
	record, err := h.audits.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// auditID accepts the id as a JSON number or string; records serialize it as a string.
type auditID int64

func (a *auditID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n = json.Number(s)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return err
	}
	*a = auditID(v)
	return nil
}

type restoreRequest struct {
	ContentType string  `json:"content_type"`
	DocumentID  string  `json:"document_id"`
	AuditID     auditID `json:"audit_id"`
}

// Restore POST /restore {content_type, document_id, audit_id}
func (h *Handler) Restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	doc, err := h.audits.Restore(c.Request.Context(), req.ContentType, req.DocumentID, int64(req.AuditID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": true, "document": doc})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
