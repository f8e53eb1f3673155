package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepool/internal/search"
	"github.com/your-org/facepool/pkg/dto"
)

type SearchHandler struct {
	service *search.Service
}

func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search takes a multipart query photo with exactly one face and returns
// the event's most similar faces.
func (h *SearchHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read upload: " + err.Error()})
		return
	}

	topK, _ := strconv.Atoi(c.DefaultPostForm("top_k", "0"))
	metric := c.PostForm("metric")

	matches, err := h.service.Search(c.Request.Context(), c.Param("code"), data, metric, topK)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.MatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, dto.MatchResponse{
			FaceID:     m.FaceID,
			ImageUUID:  m.ImageUUID,
			StorageURL: m.StorageURL,
			ClusterID:  m.Label.ToStored(),
			Box:        m.Box,
			Distance:   m.Distance,
		})
	}
	c.JSON(http.StatusOK, dto.SearchResponse{Matches: resp, Total: len(resp)})
}
