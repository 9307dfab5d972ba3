package main

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed config/index.html
var indexPage string

const uploadField = "file"

// BatchHandler serves the upload page and the batch endpoints
type BatchHandler struct {
	processor *BatchProcessor
	exporter  *ExportWriter
	columns   ColumnSettings
	maxUpload int64
	logger    Logger

	// batches outlive the upload request and stop with the server
	baseCtx context.Context
}

// NewBatchHandler creates the handler. ctx bounds every batch it starts.
func NewBatchHandler(ctx context.Context, processor *BatchProcessor, exporter *ExportWriter, columns ColumnSettings, maxUploadMB int64, log Logger) *BatchHandler {
	if log == nil {
		log = NewNopLogger()
	}
	return &BatchHandler{
		processor: processor,
		exporter:  exporter,
		columns:   columns,
		maxUpload: maxUploadMB << 20,
		logger:    log.With(String("component", "http")),
		baseCtx:   ctx,
	}
}

// NewRouter wires the handler, metrics and middleware into a gin engine
func NewRouter(h *BatchHandler, metrics *Metrics, log Logger) *gin.Engine {
	if log == nil {
		log = NewNopLogger()
	}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(template.Must(template.New("index").Parse(indexPage)))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/", h.Index)
	router.GET("/api/state", h.State)
	router.POST("/upload", h.Upload)
	router.POST("/reset", h.Reset)
	router.GET("/download", h.Download)

	return router
}

type indexView struct {
	Snapshot
	Busy    bool
	Columns ColumnSettings
}

func (h *BatchHandler) Index(c *gin.Context) {
	snap := h.processor.Snapshot()
	c.HTML(http.StatusOK, "index", indexView{
		Snapshot: snap,
		Busy:     snap.Phase.Busy(),
		Columns:  h.columns,
	})
}

func (h *BatchHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Snapshot())
}

// Upload starts a batch from the multipart "file" field. Spreadsheet
// problems are shown on the page as the ERROR phase, so they redirect too.
func (h *BatchHandler) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		h.logger.Debug("Upload without file", Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	open := func() (io.ReadCloser, error) { return fh.Open() }
	err = h.processor.Submit(h.baseCtx, fh.Filename, open)

	var parseErr *ParseError
	var readErr *FileReadError
	switch {
	case err == nil, errors.As(err, &parseErr), errors.As(err, &readErr):
		c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A batch is already in progress"})
	default:
		h.logger.Error("Failed to start batch", String("filename", fh.Filename), Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start batch"})
	}
}

func (h *BatchHandler) Reset(c *gin.Context) {
	if err := h.processor.Reset(); err != nil {
		if errors.Is(err, ErrBatchInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A batch is in progress"})
			return
		}
		h.logger.Error("Failed to reset batch", Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset batch"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Download returns the exported text once the batch is DONE
func (h *BatchHandler) Download(c *gin.Context) {
	snap := h.processor.Snapshot()
	if snap.Phase != PhaseDone {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch is not finished", "phase": snap.Phase})
		return
	}

	data, err := h.exporter.Export(snap.Records)
	switch {
	case errors.Is(err, ErrNothingToExport):
		c.JSON(http.StatusNotFound, gin.H{"error": "No extracted articles to download"})
		return
	case err != nil:
		h.logger.Error("Export failed", String("batch_id", snap.ID), Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": h.exporter.Filename(),
	}))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func ginLogger(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("HTTP request",
			String("method", method),
			String("path", path),
			Int("status_code", c.Writer.Status()),
			String("client_ip", c.ClientIP()),
			Duration("duration", time.Since(start)),
		)
	}
}
