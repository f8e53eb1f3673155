package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/pkg/dto"
)

type EventHandler struct {
	db *storage.PostgresStore
}

func NewEventHandler(db *storage.PostgresStore) *EventHandler {
	return &EventHandler{db: db}
}

func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := &models.Event{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	}

	for _, field := range []struct {
		raw  string
		dest **time.Time
	}{{req.StartAt, &event.StartAt}, {req.EndAt, &event.EndAt}} {
		if field.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, field.raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timestamps must be RFC 3339"})
			return
		}
		*field.dest = &t
	}

	if err := h.db.CreateEvent(c.Request.Context(), event); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, eventResponse(event))
}

func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.db.ResolveEvent(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eventResponse(event))
}

func (h *EventHandler) List(c *gin.Context) {
	onlyRunning := c.Query("running") == "true"
	codes, err := h.db.ListEventCodes(c.Request.Context(), onlyRunning, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": codes, "total": len(codes)})
}

func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.db.DeleteEvent(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func eventResponse(event *models.Event) dto.EventResponse {
	resp := dto.EventResponse{
		Code:        event.Code,
		Name:        event.Name,
		Description: event.Description,
		CreatedAt:   event.CreatedAt.Format(time.RFC3339),
	}
	if event.StartAt != nil {
		resp.StartAt = event.StartAt.Format(time.RFC3339)
	}
	if event.EndAt != nil {
		resp.EndAt = event.EndAt.Format(time.RFC3339)
	}
	return resp
}
