package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/health"
	"github.com/gh-risk-server/internal/middleware"
)

// handlePredict scores a validated screening request.
func (s *Server) handlePredict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}

	a, err := s.deps.Assessments.Assess(c.Request.Context(), in, domain.SourceAPI)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, a)
}

// handleScoreForm scores a loosely-typed JSON object or urlencoded form. Unusable values
// are imputed and reported rather than rejected.
func (s *Server) handleScoreForm(c *gin.Context) {
	form := map[string]any{}
	if c.ContentType() == binding.MIMEPOSTForm {
		if err := c.Request.ParseForm(); err != nil {
			s.badRequest(c, "invalid form body", err)
			return
		}
		for k := range c.Request.PostForm {
			form[k] = c.Request.PostForm.Get(k)
		}
	} else if err := c.ShouldBindJSON(&form); err != nil {
		s.badRequest(c, "invalid request body", err)
		return
	}

	a, err := s.deps.Assessments.ScoreForm(c.Request.Context(), form)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, a)
}

// handleLatest returns the stored assessment, or 404 when the patient has none.
func (s *Server) handleLatest(c *gin.Context) {
	pid, ok := s.patientID(c)
	if !ok {
		return
	}
	a, err := s.deps.Assessments.Latest(c.Request.Context(), pid)
	if err != nil {
		s.respondError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleHistory(c *gin.Context) {
	pid, ok := s.patientID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.badRequest(c, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	rows, err := s.deps.Assessments.History(c.Request.Context(), pid, limit)
	if err != nil {
		s.respondError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id":  pid,
		"count":       len(rows),
		"assessments": rows,
	})
}

// handleRiskSummary never 404s on an unscreened patient; it reports has_assessment=false.
func (s *Server) handleRiskSummary(c *gin.Context) {
	pid, ok := s.patientID(c)
	if !ok {
		return
	}
	summary, err := s.deps.Assessments.Summary(c.Request.Context(), pid)
	if err != nil {
		s.respondError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleAddAdvice(c *gin.Context) {
	pid, ok := s.patientID(c)
	if !ok {
		return
	}
	var req adviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body", err)
		return
	}

	a, err := s.deps.Advice.Add(c.Request.Context(), pid, req.AdviceText, req.Author)
	if err != nil {
		s.respondError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleListAdvice(c *gin.Context) {
	pid, ok := s.patientID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := s.deps.Advice.List(c.Request.Context(), pid, limit)
	if err != nil {
		s.respondError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id": pid,
		"count":      len(items),
		"advice":     items,
	})
}

func (s *Server) handleArtifacts(c *gin.Context) {
	b := s.deps.Assessments.Registry().Current()
	c.JSON(http.StatusOK, gin.H{
		"bundle": b.Summarize(),
		"stats":  s.deps.Assessments.Stats(),
	})
}

// handleReloadArtifacts swaps in a freshly loaded bundle. On failure the current bundle
// stays published and its version is reported back.
func (s *Server) handleReloadArtifacts(c *gin.Context) {
	registry := s.deps.Assessments.Registry()
	b, err := registry.Reload()
	if err != nil {
		current := registry.Current()
		s.logger.WithFields(logrus.Fields{
			"correlation_id":  c.GetString(middleware.CorrelationIDKey),
			"current_version": current.Version,
		}).WithError(err).Warn("Artifact reload rejected")
		body := domain.NewAPIError(domain.ErrCodeArtifactError, "artifact reload failed", err.Error(),
			c.GetString(middleware.CorrelationIDKey))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           body,
			"current_version": current.Version,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bundle": b.Summarize()})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if status.Overall == health.HealthStateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// patientID parses the :patient_id path parameter, writing a 400 when it is not a
// positive integer.
func (s *Server) patientID(c *gin.Context) (int64, bool) {
	raw := c.Param("patient_id")
	pid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || pid <= 0 {
		body := domain.NewAPIError(domain.ErrCodeInvalidInput, "patient_id must be a positive integer", raw,
			c.GetString(middleware.CorrelationIDKey))
		body.Field = "patient_id"
		c.JSON(http.StatusBadRequest, body)
		return 0, false
	}
	return pid, true
}
