package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/service"
)

const missingIDHint = `You need to specify the ID of a drone to move. Like "/move?id=drone3"`

type requestCoordinator interface {
	GetCurrentPositions(ctx context.Context) ([]domain.Record, error)
	MoveDeviceTo(ctx context.Context, deviceID string) (string, error)
	ExportTrajectory(ctx context.Context) ([]byte, error)
}

type archiveService interface {
	GetHistory(ctx context.Context, query *domain.ArchiveQuery) ([]domain.RecordEntry, error)
}

type recordResponse struct {
	DeviceID   string  `json:"device_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ReceivedAt int64   `json:"received_at"`
}

type DroneHandler struct {
	coordinator requestCoordinator
	archive     archiveService
	log         logrus.FieldLogger
}

// NewDroneHandler builds the HTTP handler. archive may be nil, in which case
// the archive route is not registered.
func NewDroneHandler(coordinator requestCoordinator, archive archiveService, log logrus.FieldLogger) *DroneHandler {
	return &DroneHandler{
		coordinator: coordinator,
		archive:     archive,
		log:         log.WithField("component", "http"),
	}
}

func (h *DroneHandler) Register(r *gin.RouterGroup) {
	r.GET("/positions", h.GetPositions)
	r.GET("/move", h.Move)
	r.GET("/genmap", h.DownloadKML)
	r.GET("/kml", h.DownloadKML)
	if h.archive != nil {
		r.GET("/archive/:device_id", h.GetArchive)
	}
}

func (h *DroneHandler) GetPositions(c *gin.Context) {
	records, err := h.coordinator.GetCurrentPositions(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to collect positions")
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *DroneHandler) Move(c *gin.Context) {
	msg, err := h.coordinator.MoveDeviceTo(c.Request.Context(), c.Query("id"))
	if err != nil {
		h.fail(c, err, "failed to move drone")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *DroneHandler) DownloadKML(c *gin.Context) {
	doc, err := h.coordinator.ExportTrajectory(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to export kml")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="positions.kml"`)
	c.Data(http.StatusOK, service.KMLContentType, doc)
}

func (h *DroneHandler) GetArchive(c *gin.Context) {
	deviceID := c.Param("device_id")

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start parameter"})
		return
	}

	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end parameter"})
		return
	}

	query := &domain.ArchiveQuery{
		DeviceID: deviceID,
		Start:    time.Unix(start, 0),
		End:      time.Unix(end, 0),
	}

	entries, err := h.archive.GetHistory(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err, "failed to fetch archive")
		return
	}

	results := make([]recordResponse, len(entries))
	for i, e := range entries {
		results[i] = recordResponse{
			DeviceID:   e.DeviceID,
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
			ReceivedAt: e.ReceivedAt.Unix(),
		}
	}
	c.JSON(http.StatusOK, results)
}

func (h *DroneHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrMissingDeviceID):
		c.JSON(http.StatusBadRequest, gin.H{"error": missingIDHint})
	case errors.Is(err, service.ErrChannelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker connection unavailable"})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
