package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"snaptrail/task"
)

// ListTasks GET /tasks?status=
func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context(), task.Status(c.Query("status")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(tasks))
}

// GetTask GET /tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// CreateTask POST /tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var in task.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err)
		return
	}
	t, err := h.tasks.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTask PUT /tasks/:id, only supplied fields change.
func (h *Handler) UpdateTask(c *gin.Context) {
	var patch task.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err)
		return
	}
	t, err := h.tasks.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTask DELETE /tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// ExecuteTask POST /tasks/:id/execute runs a pending task now.
func (h *Handler) ExecuteTask(c *gin.Context) {
	id := c.Param("id")
	results, err := h.executor.Execute(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t, "results": nonNil(results), "skipped": results == nil})
}
