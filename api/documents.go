package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"snaptrail/document"
	"snaptrail/populate"
)

// Document writes go through the pipeline so they are captured like any other caller's.

type documentBody struct {
	Data   map[string]any `json:"data"`
	Locale string         `json:"locale"`
}

// CreateDocument POST /documents/:type
func (h *Handler) CreateDocument(c *gin.Context) {
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), c.Param("type"), body.Data, body.Locale)
	h.respondDocument(c, http.StatusCreated, doc, err)
}

// GetDocument GET /documents/:type/:id?populate=deep
func (h *Handler) GetDocument(c *gin.Context) {
	var plan *populate.Plan
	if c.Query("populate") == "deep" && h.planner != nil {
		plan = h.planner.Plan(c.Param("type"))
	}
	doc, err := h.documents.FindOne(c.Request.Context(), c.Param("type"), c.Param("id"), plan)
	h.respondDocument(c, http.StatusOK, doc, err)
}

// UpdateDocument PUT /documents/:type/:id
func (h *Handler) UpdateDocument(c *gin.Context) {
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), c.Param("type"), c.Param("id"), body.Data, body.Locale)
	h.respondDocument(c, http.StatusOK, doc, err)
}

// DeleteDocument DELETE /documents/:type/:id
func (h *Handler) DeleteDocument(c *gin.Context) {
	_, err := h.documents.Delete(c.Request.Context(), c.Param("type"), c.Param("id"), c.Query("locale"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PublishDocument POST /documents/:type/:id/publish
func (h *Handler) PublishDocument(c *gin.Context) {
	doc, err := h.documents.Publish(c.Request.Context(), c.Param("type"), c.Param("id"), c.Query("locale"))
	h.respondDocument(c, http.StatusOK, doc, err)
}

// UnpublishDocument POST /documents/:type/:id/unpublish
func (h *Handler) UnpublishDocument(c *gin.Context) {
	doc, err := h.documents.Unpublish(c.Request.Context(), c.Param("type"), c.Param("id"), c.Query("locale"))
	h.respondDocument(c, http.StatusOK, doc, err)
}

func (h *Handler) respondDocument(c *gin.Context, status int, doc document.Document, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, doc)
}
