package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/infrastructure/cache"
)

// errorStatus maps domain errors onto HTTP status codes. Malformed input
// is the client's fault, semantically unprocessable input gets 422, and
// operations that need state the engine does not have yet conflict with
// its current state.
func errorStatus(err error) int {
	var (
		validation   *entity.ValidationError
		shape        *entity.FeatureShapeError
		unknown      *entity.UnknownCategoryError
		target       *entity.InvalidTargetError
		insufficient *entity.InsufficientDataError
		business     *entity.BusinessLogicError
	)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &shape):
		return http.StatusBadRequest
	case errors.As(err, &unknown), errors.As(err, &target), errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	case errors.As(err, &business):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(c *gin.Context, message string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(message, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

// latestReport returns the most recent executive report.
func (s *Server) latestReport(c *gin.Context) {
	report, err := s.runner.LatestReport(c.Request.Context())
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no report available",
				"details": "no analysis run has completed yet",
			})
			return
		}
		s.renderError(c, "failed to load report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// reportSection returns one section of the latest report.
func (s *Server) reportSection(c *gin.Context) {
	key := c.Param("key")
	if !isKnownSection(key) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "unknown report section",
			"details":  "no section named " + key,
			"sections": entity.SectionKeys(),
		})
		return
	}

	report, err := s.runner.LatestReport(c.Request.Context())
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no report available",
				"details": "no analysis run has completed yet",
			})
			return
		}
		s.renderError(c, "failed to load report", err)
		return
	}

	payload, ok := report.Section(key)
	if !ok {
		details := "section not produced for this run"
		if reason, failed := report.SectionErrors[key]; failed {
			details = reason
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "section unavailable",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  report.RunID,
		"section": key,
		"data":    payload,
	})
}

// reportByRun returns the cached report for one run id.
func (s *Server) reportByRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id", "details": err.Error()})
		return
	}

	report, err := s.runner.ReportByRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "report not found",
				"details": "no cached report for run " + runID.String(),
			})
			return
		}
		s.renderError(c, "failed to load report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// triggerRun executes a full analysis pass and returns the fresh report.
func (s *Server) triggerRun(c *gin.Context) {
	start := time.Now()
	report, err := s.runner.Run(c.Request.Context())
	if err != nil {
		if s.collector != nil {
			s.collector.RecordAnalysisRun("failure", time.Since(start))
		}
		s.logger.Error("analysis run failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "analysis run failed",
			"details": err.Error(),
		})
		return
	}

	if s.collector != nil {
		s.collector.RecordAnalysisRun("success", time.Since(start))
		for key := range report.SectionErrors {
			s.collector.RecordSectionFailure(key)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"run_id": report.RunID,
		"report": report,
	})
}

// predictCost serves a cost prediction for one hypothetical incident.
func (s *Server) predictCost(c *gin.Context) {
	var input entity.PredictionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := input.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prediction input", "details": err.Error()})
		return
	}

	result, err := s.runner.PredictCost(input)
	if err != nil {
		if s.collector != nil {
			s.collector.RecordPrediction("failure")
		}
		s.renderError(c, "prediction failed", err)
		return
	}

	if s.collector != nil {
		s.collector.RecordPrediction("success")
	}
	c.JSON(http.StatusOK, result)
}

// simulationRequest selects one of two modes: a target mean detection
// delay for a savings projection, or per-incident delay cuts for a
// counterfactual re-scoring. target_detection_days is a pointer so a
// target of zero days stays distinguishable from an absent field.
type simulationRequest struct {
	TargetDetectionDays *float64 `json:"target_detection_days"`
	DetectionCutDays    float64  `json:"detection_cut_days"`
	ResponseCutDays     float64  `json:"response_cut_days"`
	Conservatism        float64  `json:"conservatism"`
}

// simulate serves a delay-impact simulation against the latest run.
func (s *Server) simulate(c *gin.Context) {
	var req simulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	switch {
	case req.TargetDetectionDays != nil:
		projection, err := s.runner.ProjectSavings(*req.TargetDetectionDays, req.Conservatism)
		if err != nil {
			if s.collector != nil {
				s.collector.RecordSimulation("projection", "failure")
			}
			s.renderError(c, "savings projection failed", err)
			return
		}
		if s.collector != nil {
			s.collector.RecordSimulation("projection", "success")
		}
		c.JSON(http.StatusOK, gin.H{"kind": "projection", "result": projection})

	case req.DetectionCutDays > 0 || req.ResponseCutDays > 0:
		counterfactual, err := s.runner.Counterfactual(req.DetectionCutDays, req.ResponseCutDays, req.Conservatism)
		if err != nil {
			if s.collector != nil {
				s.collector.RecordSimulation("counterfactual", "failure")
			}
			s.renderError(c, "counterfactual simulation failed", err)
			return
		}
		if s.collector != nil {
			s.collector.RecordSimulation("counterfactual", "success")
		}
		c.JSON(http.StatusOK, gin.H{"kind": "counterfactual", "result": counterfactual})

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid simulation request",
			"details": "provide target_detection_days or detection_cut_days/response_cut_days",
		})
	}
}

func isKnownSection(key string) bool {
	for _, known := range entity.SectionKeys() {
		if key == known {
			return true
		}
	}
	return false
}
