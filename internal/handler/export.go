package handler

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"support_chat/internal/config"
	"support_chat/internal/middleware"
	"support_chat/internal/service"
	"support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

type ExportHandler struct {
	exports service.ExportService
	log     logger.Logger
}

func NewExportHandler(exports service.ExportService, log logger.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		log:     log,
	}
}

type DeleteConversationsRequest struct {
	Identities []string `json:"identities" binding:"required"`
}

type CreateExportRequest struct {
	// Пустой список - экспорт всех бесед
	Identities []string `json:"identities"`
	Format     string   `json:"format"`
}

func (h *ExportHandler) DeleteConversations(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var req DeleteConversationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.exports.DeleteFor(c.Request.Context(), principal, req.Identities)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ExportHandler) CreateExport(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var req CreateExportRequest
	// Тело необязательно
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var (
		result interface{}
		err    error
	)
	if len(req.Identities) == 0 {
		result, err = h.exports.ExportAll(c.Request.Context(), principal, req.Format)
	} else {
		result, err = h.exports.ExportFor(c.Request.Context(), principal, req.Identities, req.Format)
	}

	if stderrors.Is(err, errors.ErrExportFailed) {
		// разбивка по identity нужна и при полном провале
		c.JSON(errors.HTTPStatusFromError(err), gin.H{"error": err.Error(), "result": result})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *ExportHandler) ListExports(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	artifacts, err := h.exports.ListArtifacts(c.Request.Context(), principal)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": artifacts})
}

func (h *ExportHandler) Download(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	rc, artifact, err := h.exports.OpenArtifact(c.Request.Context(), principal, c.Param("name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, artifact.Size, contentType(artifact.Format), rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, artifact.Name),
		"X-Export-Created-At": strconv.FormatInt(artifact.CreatedAt.Unix(), 10),
	})
}

// GetMessages читает артефакт обратно в сообщения
func (h *ExportHandler) GetMessages(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	messages, err := h.exports.ReadArtifact(c.Request.Context(), principal, c.Param("name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "messages": messages})
}

func (h *ExportHandler) DeleteExport(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	if err := h.exports.DeleteArtifact(c.Request.Context(), principal, c.Param("name")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func contentType(format string) string {
	switch format {
	case config.ExportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}
