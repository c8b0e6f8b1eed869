// Package handler provides the HTTP handlers for the tessera API.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/tessera/biz"
	"github.com/tessera-ai/tessera/pkg/errors"
)

// maxUploadBytes caps document uploads.
const maxUploadBytes = 32 << 20

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler handles tessera HTTP requests.
type Handler struct {
	svc *biz.Service
}

// New creates a Handler.
func New(svc *biz.Service) *Handler {
	return &Handler{svc: svc}
}

func writeSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: data})
}

func writeError(c *gin.Context, err error) {
	coded, ok := errors.FromError(err)
	if !ok {
		coded = errors.ErrInternal.WithMessage("%s", err.Error())
	}
	c.JSON(errors.HTTPStatus(coded), ErrorResponse{Code: coded.Code, Message: coded.Message})
}

func writeBadRequest(c *gin.Context, err error) {
	writeError(c, errors.ErrInvalidRequest.WithMessage("%s", err.Error()))
}

// CreateCollectionRequest creates a collection.
type CreateCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateCollection handles POST /v1/collections.
func (h *Handler) CreateCollection(c *gin.Context) {
	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	col, err := h.svc.CreateCollection(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, col)
}

// ListCollections handles GET /v1/collections.
func (h *Handler) ListCollections(c *gin.Context) {
	cols, err := h.svc.ListCollections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, cols)
}

// GetCollection handles GET /v1/collections/:collection.
func (h *Handler) GetCollection(c *gin.Context) {
	col, err := h.svc.GetCollection(c.Request.Context(), c.Param("collection"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, col)
}

// DeleteCollection handles DELETE /v1/collections/:collection.
func (h *Handler) DeleteCollection(c *gin.Context) {
	if err := h.svc.DeleteCollection(c.Request.Context(), c.Param("collection")); err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, nil)
}

// IngestURLRequest ingests a document fetched from a URL.
type IngestURLRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

// IngestDocument handles POST /v1/collections/:collection/documents.
//
// Uploads arrive as multipart form data with a "file" part; remote documents
// as a JSON body carrying the URL. Either way the document is registered as
// pending and processed in the background.
func (h *Handler) IngestDocument(c *gin.Context) {
	collectionID := c.Param("collection")

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.ingestUpload(c, collectionID)
		return
	}

	h.ingestURL(c, collectionID)
}

// IngestDocumentURL handles POST /v1/collections/:collection/documents/url.
func (h *Handler) IngestDocumentURL(c *gin.Context) {
	h.ingestURL(c, c.Param("collection"))
}

func (h *Handler) ingestURL(c *gin.Context, collectionID string) {
	var req IngestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	doc, err := h.svc.IngestDocument(c.Request.Context(), collectionID, req.Title, req.URL, "", nil)
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, doc)
}

func (h *Handler) ingestUpload(c *gin.Context, collectionID string) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeBadRequest(c, fmt.Errorf("missing file part: %w", err))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(c, errors.ErrIngestFailed.WithMessage("failed to read upload").WithCause(err))
		return
	}
	if len(data) > maxUploadBytes {
		writeError(c, errors.ErrInvalidRequest.WithMessage("upload exceeds %d bytes", maxUploadBytes))
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = header.Filename
	}
	mediaType := header.Header.Get("Content-Type")

	doc, err := h.svc.IngestDocument(c.Request.Context(), collectionID, title, header.Filename, mediaType, data)
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, doc)
}

// ListDocuments handles GET /v1/collections/:collection/documents.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.svc.ListDocuments(c.Request.Context(), c.Param("collection"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, docs)
}

// GetDocument handles GET /v1/collections/:collection/documents/:document.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.svc.GetDocument(c.Request.Context(), c.Param("collection"), c.Param("document"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, doc)
}

// DeleteDocument handles DELETE /v1/collections/:collection/documents/:document.
func (h *Handler) DeleteDocument(c *gin.Context) {
	err := h.svc.RemoveDocument(c.Request.Context(), c.Param("collection"), c.Param("document"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, nil)
}

// RebuildIndex handles POST /v1/collections/:collection/index/rebuild.
func (h *Handler) RebuildIndex(c *gin.Context) {
	if err := h.svc.RebuildSparseIndex(c.Request.Context(), c.Param("collection")); err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, nil)
}

// Stats handles GET /v1/collections/:collection/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), c.Param("collection"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, stats)
}

// QueryRequest asks a question against a collection.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
}

// QueryResponse wraps a query answer with its session.
type QueryResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Sources   any    `json:"sources"`
	Cached    bool   `json:"cached"`
}

// Query handles POST /v1/collections/:collection/query.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	result, sessionID, err := h.svc.Query(c.Request.Context(), c.Param("collection"), req.SessionID, req.Query)
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, QueryResponse{
		SessionID: sessionID,
		Answer:    result.Answer,
		Sources:   result.Sources,
		Cached:    result.Cached,
	})
}

// QueryStream handles POST /v1/collections/:collection/query/stream.
//
// The response is a server-sent event stream. Each event carries a JSON
// payload; the event name is the payload type. The stream always ends with
// an "end" event, even when generation fails partway.
func (h *Handler) QueryStream(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	events, err := h.svc.StreamQuery(c.Request.Context(), c.Param("collection"), req.SessionID, req.Query)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Errorw("failed to marshal stream event", "error", err.Error())
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
			// Client gone; the controller notices via the request context
			// and still persists the partial answer.
			return
		}
		c.Writer.Flush()
	}
}

// ListSessions handles GET /v1/collections/:collection/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.ListSessions(c.Request.Context(), c.Param("collection"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, sessions)
}

// ListMessages handles GET /v1/sessions/:session/messages.
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("session"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, msgs)
}

// DeleteSession handles DELETE /v1/sessions/:session.
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("session")); err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, nil)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
