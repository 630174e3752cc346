package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/middleware"
)

// respondError maps err onto an APIError body. fallback is the status for errors that
// carry no domain sentinel: 503 on storage reads, 500 elsewhere.
func (s *Server) respondError(c *gin.Context, err error, fallback int) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	switch verr := validationCause(err); {
	case verr != nil:
		body := domain.NewAPIError(domain.ErrCodeInvalidInput, verr.Message, err.Error(), requestID)
		body.Field = verr.Field
		c.JSON(http.StatusBadRequest, body)

	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, err.Error(), "", requestID))

	case errors.Is(err, domain.ErrInferenceFailed):
		cause := strings.TrimPrefix(err.Error(), domain.ErrInferenceFailed.Error()+": ")
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodePrediction,
			fmt.Sprintf("prediction failed: %s", cause), "", requestID))

	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrCodeNotFound, err.Error(), "", requestID))

	case errors.Is(err, domain.ErrArtifactMissing), errors.Is(err, domain.ErrArtifactInvalid):
		s.logger.WithField("correlation_id", requestID).WithError(err).Error("Artifact error")
		c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(domain.ErrCodeArtifactError, "artifact bundle unavailable", err.Error(), requestID))

	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": requestID,
			"path":           c.FullPath(),
		}).WithError(err).Error("Request failed")
		code := domain.ErrCodeInternalServer
		if fallback == http.StatusServiceUnavailable {
			code = domain.ErrCodeDatabaseError
		}
		c.JSON(fallback, domain.NewAPIError(code, http.StatusText(fallback), "", requestID))
	}
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, message, details,
		c.GetString(middleware.CorrelationIDKey)))
}

// validationCause returns the first field violation carried by err, if any.
func validationCause(err error) *domain.ValidationError {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs.First()
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}
