package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepool/internal/ingest"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/pkg/dto"
)

type ImageHandler struct {
	db          *storage.PostgresStore
	coordinator *ingest.Coordinator
}

func NewImageHandler(db *storage.PostgresStore, coordinator *ingest.Coordinator) *ImageHandler {
	return &ImageHandler{db: db, coordinator: coordinator}
}

// Upload accepts a multipart photo and queues face extraction. Responds 202
// because detection has not happened yet.
func (h *ImageHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
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

	img, err := h.coordinator.Ingest(c.Request.Context(), c.Param("code"), header.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.UploadResponse{
		UUID:       img.UUID,
		StorageURL: img.StorageURL,
		FaceCount:  0,
	})
}

// List returns a filtered page of an event's images, newest changes first.
func (h *ImageHandler) List(c *gin.Context) {
	event, err := h.db.ResolveEvent(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	filter, err := parseImageFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.db.ListImages(c.Request.Context(), event.ID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.ImageResponse, 0, len(images))
	for i := range images {
		resp = append(resp, imageResponse(&images[i], nil))
	}
	c.JSON(http.StatusOK, dto.ListImagesResponse{Images: resp, Total: len(resp)})
}

func (h *ImageHandler) Get(c *gin.Context) {
	img, err := h.db.GetImage(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}

	faces, err := h.db.ImageFaces(c.Request.Context(), img.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, imageResponse(img, faces))
}

func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.coordinator.DeleteImage(c.Request.Context(), c.Param("uuid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseImageFilter(c *gin.Context) (storage.ImageFilter, error) {
	var f storage.ImageFilter

	for _, q := range []struct {
		name string
		dest **time.Time
	}{{"from", &f.DateFrom}, {"to", &f.DateTo}} {
		if raw := c.Query(q.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, err
			}
			*q.dest = &t
		}
	}

	for _, q := range []struct {
		name string
		dest **int
	}{{"min_faces", &f.MinFaces}, {"max_faces", &f.MaxFaces}} {
		if raw := c.Query(q.name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return f, err
			}
			*q.dest = &v
		}
	}

	if raw := c.Query("clusters"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return f, err
			}
			f.ClusterIDs = append(f.ClusterIDs, v)
		}
	}

	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return f, nil
}

func imageResponse(img *models.Image, faces []models.Face) dto.ImageResponse {
	resp := dto.ImageResponse{
		UUID:          img.UUID,
		StorageURL:    img.StorageURL,
		FileExtension: img.FileExtension,
		FaceCount:     img.FaceCount,
		CreatedAt:     img.CreatedAt.Format(time.RFC3339),
		LastModified:  img.LastModified.Format(time.RFC3339),
	}
	for _, f := range faces {
		resp.Faces = append(resp.Faces, dto.FaceResponse{
			ID:        f.ID,
			Box:       f.Box,
			ClusterID: f.Label.ToStored(),
		})
	}
	return resp
}
