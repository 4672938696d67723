// Package api exposes submission, status polling and synchronous querying over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/service"
)

// Backend is the application surface served over HTTP. *service.Service satisfies it.
type Backend interface {
	Submit(ctx context.Context, req *core.QueryRequest) (*service.Submission, error)
	Query(ctx context.Context, req *core.QueryRequest) (*core.QueryResult, bool, error)
	Status(ctx context.Context, jobID string) (*service.JobStatus, error)
}

type queryBody struct {
	DocumentURL string   `json:"documentURL"`
	Questions   []string `json:"questions"`
}

type resultBody struct {
	Success     bool      `json:"success"`
	Chunks      int       `json:"chunks"`
	Answers     []string  `json:"answers,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

type statusBody struct {
	JobID  string      `json:"jobId"`
	State  string      `json:"state"`
	Result *resultBody `json:"result"`
	Error  string      `json:"error,omitempty"`
}

// Handler holds the HTTP handlers.
type Handler struct {
	backend     Backend
	development bool
	logger      *slog.Logger
}

func (h *Handler) submit(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	sub, err := h.backend.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sub.Cached {
		c.JSON(http.StatusOK, gin.H{"answers": sub.Answers, "cached": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":     sub.JobID,
		"status":    "processing",
		"statusURL": statusPath + sub.JobID,
	})
}

func (h *Handler) status(c *gin.Context) {
	status, err := h.backend.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}

	body := statusBody{
		JobID: status.JobID,
		State: string(status.State),
		Error: status.Error,
	}
	if r := status.Result; r != nil {
		body.Result = &resultBody{
			Success:     r.Success,
			Chunks:      r.Chunks,
			Answers:     r.Answers,
			CompletedAt: r.CompletedAt,
		}
	}
	if status.State.Terminal() {
		markCacheable(c)
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) query(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	result, cached, err := h.backend.Query(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": result.Answers, "cached": cached})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) bind(c *gin.Context) (*core.QueryRequest, bool) {
	var body queryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return nil, false
	}
	return &core.QueryRequest{DocumentURL: body.DocumentURL, Questions: body.Questions}, true
}

// fail maps err to a status code. Internal error detail is only exposed in development.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "err", err)
		body := gin.H{"error": "internal error"}
		if h.development {
			body["detail"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}
