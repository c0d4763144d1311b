package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/export"
	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/internal/pdf"
	"github.com/tallyfold/receiptd/internal/repository"
	"github.com/tallyfold/receiptd/internal/services"
	"github.com/tallyfold/receiptd/internal/worker"
)

// WorkerStatusFunc reports background worker state for the health endpoint.
type WorkerStatusFunc func() worker.ProcessorStatus

// Handlers contains all HTTP request handlers
type Handlers struct {
	receipts     *services.ReceiptService
	exports      *export.Service
	workerStatus WorkerStatusFunc
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(receipts *services.ReceiptService, exports *export.Service, workerStatus WorkerStatusFunc, logger *zap.Logger) *Handlers {
	return &Handlers{
		receipts:     receipts,
		exports:      exports,
		workerStatus: workerStatus,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                  `json:"status"`
	Timestamp string                  `json:"timestamp"`
	Version   string                  `json:"version"`
	Worker    *worker.ProcessorStatus `json:"worker,omitempty"`
}

// UploadResponse is returned from a successful upload.
type UploadResponse struct {
	Receipt *models.Receipt `json:"receipt"`
	JobID   string          `json:"job_id"`
}

// ListReceiptsRequest represents query parameters for listing receipts
type ListReceiptsRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	Merchant string `form:"merchant"`
	From     string `form:"from"` // YYYY-MM-DD
	To       string `form:"to"`   // YYYY-MM-DD
}

// ListReceiptsResponse is a page of receipts with pagination metadata.
type ListReceiptsResponse struct {
	Receipts []*models.Receipt `json:"receipts"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int               `json:"total"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}
	if h.workerStatus != nil {
		status := h.workerStatus()
		response.Worker = &status
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// UploadReceipt handles POST /api/v1/receipts
func (h *Handlers) UploadReceipt(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing file field",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "failed to open uploaded file",
		})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "failed to read uploaded file",
		})
		return
	}

	receipt, job, err := h.receipts.Upload(fileHeader.Filename, content)
	if err != nil {
		var dup *services.DuplicateError
		var tooLarge *services.TooLargeError
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, Response{
				Success: false,
				Error:   err.Error(),
				Data:    gin.H{"existing_id": dup.ExistingPublicID},
			})
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, Response{
				Success: false,
				Error:   err.Error(),
			})
		case errors.Is(err, services.ErrEmptyFile), errors.Is(err, pdf.ErrUnsupportedType):
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   err.Error(),
			})
		default:
			h.logger.Error("Upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "upload failed",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data: UploadResponse{
			Receipt: receipt,
			JobID:   job.PublicID,
		},
	})
}

// ListReceipts handles GET /api/v1/receipts
func (h *Handlers) ListReceipts(c *gin.Context) {
	var req ListReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	filter := repository.ReceiptListFilter{
		Status:   req.Status,
		Merchant: req.Merchant,
		Limit:    req.PageSize,
		Offset:   (req.Page - 1) * req.PageSize,
	}

	var err error
	if filter.From, err = parseDateParam(req.From); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid from date, want YYYY-MM-DD"})
		return
	}
	if filter.To, err = parseDateParam(req.To); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid to date, want YYYY-MM-DD"})
		return
	}

	receipts, total, err := h.receipts.List(filter)
	if err != nil {
		h.logger.Error("Failed to list receipts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to list receipts",
		})
		return
	}
	if receipts == nil {
		receipts = []*models.Receipt{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ListReceiptsResponse{
			Receipts: receipts,
			Page:     req.Page,
			PageSize: req.PageSize,
			Total:    total,
		},
	})
}

// GetReceipt handles GET /api/v1/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	receipt, err := h.receipts.Get(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "failed to get receipt")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    receipt,
	})
}

// DownloadReceiptFile handles GET /api/v1/receipts/:id/file
func (h *Handlers) DownloadReceiptFile(c *gin.Context) {
	path, filename, err := h.receipts.FilePath(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "failed to get receipt file")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", url.PathEscape(filename)))
	c.File(path)
}

// DeleteReceipt handles DELETE /api/v1/receipts/:id
func (h *Handlers) DeleteReceipt(c *gin.Context) {
	if err := h.receipts.Delete(c.Param("id")); err != nil {
		h.respondLookupError(c, err, "failed to delete receipt")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ReprocessReceipt handles POST /api/v1/receipts/:id/reprocess
func (h *Handlers) ReprocessReceipt(c *gin.Context) {
	job, err := h.receipts.Reprocess(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "receipt not found"})
			return
		}
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    gin.H{"job_id": job.PublicID},
	})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.receipts.GetJob(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "failed to get job")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    job,
	})
}

// ExportReceipts handles GET /api/v1/receipts/export
func (h *Handlers) ExportReceipts(c *gin.Context) {
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid from date, want YYYY-MM-DD"})
		return
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid to date, want YYYY-MM-DD"})
		return
	}

	data, err := h.exports.ExportReceiptsXLSX(from, to)
	if err != nil {
		h.logger.Error("Export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "export failed",
		})
		return
	}

	filename := fmt.Sprintf("receipts-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handlers) respondLookupError(c *gin.Context, err error, msg string) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "not found"})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: msg})
}

func parseDateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
