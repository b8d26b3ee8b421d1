package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/Ayash-Bera/reviewboard/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReviewLister is the read side used by GET /records.
type ReviewLister interface {
	ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error)
}

// ReviewWriter is the single-record side of the API.
type ReviewWriter interface {
	Get(ctx context.Context, id uint) (*models.Review, error)
	Create(ctx context.Context, draft validation.Draft) (*models.Review, error)
	Update(ctx context.Context, id uint, draft validation.Draft) (*models.Review, error)
	Delete(ctx context.Context, id uint) error
}

const (
	msgWrongID     = "Wrong id format"
	msgDeleted     = "Review deleted"
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

type ReviewHandler struct {
	lister ReviewLister
	writer ReviewWriter
	logger *logrus.Logger
}

func NewReviewHandler(lister ReviewLister, writer ReviewWriter, logger *logrus.Logger) *ReviewHandler {
	return &ReviewHandler{
		lister: lister,
		writer: writer,
		logger: logger,
	}
}

// HandleList serves GET /records?page&search&author&rating.
func (h *ReviewHandler) HandleList(c *gin.Context) {
	filter := models.NewReviewFilter(c.Query("search"), c.Query("author"), c.Query("rating"))
	page := models.ParsePage(c.Query("page"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.lister.ListReviews(ctx, filter, page)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGet serves GET /records/:id.
func (h *ReviewHandler) HandleGet(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	review, err := h.writer.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.DataResponse(c, http.StatusOK, review)
}

// HandleCreate serves POST /records.
func (h *ReviewHandler) HandleCreate(c *gin.Context) {
	draft, ok := h.bindDraft(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	review, err := h.writer.Create(ctx, draft)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.DataResponse(c, http.StatusOK, review)
}

// HandleUpdate serves PUT /records/:id. The id is checked before the body.
func (h *ReviewHandler) HandleUpdate(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	draft, ok := h.bindDraft(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	review, err := h.writer.Update(ctx, id, draft)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.DataResponse(c, http.StatusOK, review)
}

// HandleDelete serves DELETE /records/:id with a plain text confirmation.
func (h *ReviewHandler) HandleDelete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.writer.Delete(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}

	c.String(http.StatusOK, msgDeleted)
}

// parseID accepts positive integers only.
func (h *ReviewHandler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, msgWrongID, nil)
		return 0, false
	}
	return uint(id), true
}

func (h *ReviewHandler) bindDraft(c *gin.Context) (validation.Draft, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return validation.Draft{}, false
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid body", nil)
		return validation.Draft{}, false
	}

	draft, err := validation.DecodeDraft(body)
	if err != nil {
		h.writeError(c, err)
		return validation.Draft{}, false
	}
	return draft, true
}

// writeError maps error kinds onto status codes. Unclassified errors become a
// generic 500 without leaking internals.
func (h *ReviewHandler) writeError(c *gin.Context, err error) {
	var domainErr *models.Error
	if !errors.As(err, &domainErr) {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Unhandled error")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	status := StatusFor(domainErr.Kind)
	switch domainErr.Kind {
	case models.KindValidationFailed:
		utils.FieldErrorResponse(c, status, domainErr.Message, domainErr.Fields)
	case models.KindStorageUnavailable:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Storage unavailable")
		utils.ErrorResponse(c, status, "Storage unavailable", nil)
	default:
		utils.ErrorResponse(c, status, domainErr.Message, nil)
	}
}

// StatusFor is the HTTP status used for an error kind.
func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidationFailed:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindStaleReference:
		return http.StatusConflict
	case models.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
