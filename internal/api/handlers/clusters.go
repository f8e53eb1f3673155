package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepool/internal/cluster"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/queue"
	"github.com/your-org/facepool/internal/summary"
	"github.com/your-org/facepool/pkg/dto"
)

type ClusterHandler struct {
	summaries *summary.Service
	producer  *queue.Producer

	defaultAlgorithm     string
	defaultPreprocessing string
}

func NewClusterHandler(summaries *summary.Service, producer *queue.Producer, defaultAlgorithm, defaultPreprocessing string) *ClusterHandler {
	return &ClusterHandler{
		summaries:            summaries,
		producer:             producer,
		defaultAlgorithm:     defaultAlgorithm,
		defaultPreprocessing: defaultPreprocessing,
	}
}

// Run enqueues a clustering pass on the jobs stream. The cluster daemon is
// the only place runs execute, so one event never clusters twice at once no
// matter how many API replicas accept triggers.
func (h *ClusterHandler) Run(c *gin.Context) {
	eventCode := c.Param("code")

	req := dto.ClusterRunRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Algorithm == "" {
		req.Algorithm = h.defaultAlgorithm
	}
	if req.Preprocessing == "" {
		req.Preprocessing = h.defaultPreprocessing
	}

	// Reject bad requests here; the daemon drops invalid jobs silently.
	if _, err := cluster.Get(req.Algorithm); err != nil {
		respondError(c, err)
		return
	}
	if _, err := cluster.ParseParams(req.Params, 0); err != nil {
		respondError(c, err)
		return
	}

	if h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue unavailable"})
		return
	}
	job := models.ClusterJob{
		EventCode:     eventCode,
		Algorithm:     req.Algorithm,
		Preprocessing: req.Preprocessing,
		Params:        req.Params,
		RequestedAt:   time.Now().UTC(),
	}
	if err := h.producer.PublishClusterJob(c.Request.Context(), job); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ClusterRunResponse{
		EventCode:     eventCode,
		Algorithm:     req.Algorithm,
		Preprocessing: req.Preprocessing,
	})
}

// Summaries lists the event's clusters with representative faces.
func (h *ClusterHandler) Summaries(c *gin.Context) {
	sampleSize, _ := strconv.Atoi(c.DefaultQuery("samples", "0"))

	summaries, err := h.summaries.Summaries(c.Request.Context(), c.Param("code"), sampleSize)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.ClusterSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		entry := dto.ClusterSummaryResponse{
			ClusterID: s.Label.ToStored(),
			FaceCount: s.FaceCount,
		}
		for _, sample := range s.Samples {
			entry.Samples = append(entry.Samples, dto.FaceSampleResponse{
				FaceID:     sample.FaceID,
				ImageUUID:  sample.ImageUUID,
				StorageURL: sample.StorageURL,
				Box:        sample.Box,
			})
		}
		resp = append(resp, entry)
	}

	c.JSON(http.StatusOK, gin.H{"clusters": resp, "total": len(resp)})
}
