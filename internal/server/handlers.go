package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mfcarvalho/legalconsult/internal/models"
	"github.com/mfcarvalho/legalconsult/internal/services"
)

// Handler exposes every user action as one HTTP command. Each command
// mutates one conversation under its lock and returns a render-ready
// snapshot; the page decides when to redraw.
type Handler struct {
	registry       *services.Registry
	docs           *services.DocumentStore
	cache          *services.CacheManager
	chat           *services.ChatService
	maxUploadBytes int64
}

func NewHandler(registry *services.Registry, docs *services.DocumentStore, cache *services.CacheManager, chat *services.ChatService, maxUploadBytes int64) *Handler {
	return &Handler{
		registry:       registry,
		docs:           docs,
		cache:          cache,
		chat:           chat,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateConversation(c *gin.Context) {
	conv := h.registry.Create()
	c.JSON(http.StatusCreated, models.NewSnapshot(conv))
}

func (h *Handler) GetConversation(c *gin.Context) {
	h.command(c, func(conv *models.Conversation) error {
		c.JSON(http.StatusOK, models.NewSnapshot(conv))
		return nil
	})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LoadDocument accepts a multipart `file` upload or a JSON {url} body,
// validates the document, creates its cached session, and only then
// swaps it into the conversation and clears the transcript.
func (h *Handler) LoadDocument(c *gin.Context) {
	doc, err := h.receiveDocument(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.command(c, func(conv *models.Conversation) error {
		if err := h.cache.Create(c.Request.Context(), conv, doc, 0); err != nil {
			return err
		}
		conv.Document = doc
		conv.Clear()
		c.JSON(http.StatusOK, models.NewSnapshot(conv))
		return nil
	})
}

func (h *Handler) AskMessage(c *gin.Context) {
	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	question := strings.TrimSpace(req.Question)

	h.command(c, func(conv *models.Conversation) error {
		if _, err := h.chat.Ask(c.Request.Context(), conv, question); err != nil {
			return err
		}
		c.JSON(http.StatusOK, models.NewSnapshot(conv))
		return nil
	})
}

func (h *Handler) RenewCache(c *gin.Context) {
	var req models.RenewCacheRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_seconds must be an integer"})
			return
		}
	}
	var ttl time.Duration
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	h.command(c, func(conv *models.Conversation) error {
		if err := h.cache.Renew(c.Request.Context(), conv, ttl); err != nil {
			return err
		}
		c.JSON(http.StatusOK, models.NewSnapshot(conv))
		return nil
	})
}

func (h *Handler) DeleteCache(c *gin.Context) {
	h.command(c, func(conv *models.Conversation) error {
		deleted, err := h.cache.Delete(c.Request.Context(), conv)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, models.DeleteCacheResponse{
			Deleted:  deleted,
			Snapshot: models.NewSnapshot(conv),
		})
		return nil
	})
}

// ClearConversation starts a new chat over the same document and session.
func (h *Handler) ClearConversation(c *gin.Context) {
	h.command(c, func(conv *models.Conversation) error {
		conv.Clear()
		c.JSON(http.StatusOK, models.NewSnapshot(conv))
		return nil
	})
}

func (h *Handler) GetPage(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}

	h.command(c, func(conv *models.Conversation) error {
		if conv.Document == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no document loaded"})
			return nil
		}
		data, err := h.docs.ExtractPage(conv.Document, page)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, "application/pdf", data)
		return nil
	})
}

// GetCitedPages extracts the pages cited by the most recent assistant
// answer for the preview panel.
func (h *Handler) GetCitedPages(c *gin.Context) {
	h.command(c, func(conv *models.Conversation) error {
		resp := models.CitedPagesResponse{Pages: []models.PageData{}}
		pages := conv.LastCitedPages()
		if conv.Document != nil && len(pages) > 0 {
			extracts, err := h.docs.ExtractPages(c.Request.Context(), conv.Document, pages)
			if err != nil {
				return err
			}
			for _, ex := range extracts {
				resp.Pages = append(resp.Pages, models.PageData{Page: ex.Page, PDF: ex.Data})
			}
		}
		c.JSON(http.StatusOK, resp)
		return nil
	})
}

func (h *Handler) receiveDocument(c *gin.Context) (*models.Document, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: multipart field %q is required: %v", services.ErrInvalidDocument, "file", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrInvalidDocument, err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrInvalidDocument, err)
		}
		return h.docs.FromUpload(fh.Filename, data)
	}

	var req models.LoadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("%w: provide a multipart file or a JSON url", services.ErrInvalidDocument)
	}
	return h.docs.FromURL(c.Request.Context(), req.URL)
}

// command runs fn under the conversation's lock and maps service errors
// to HTTP statuses. fn writes the success response itself.
func (h *Handler) command(c *gin.Context, fn func(conv *models.Conversation) error) {
	if err := h.registry.Do(c.Param("id"), fn); err != nil {
		h.fail(c, err)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPageOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoActiveSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// Anything else came back from the provider.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
