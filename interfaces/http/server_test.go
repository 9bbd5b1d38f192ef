package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/domain/service"
	"github.com/missatech/breach-analytics/infrastructure/cache"
	"github.com/missatech/breach-analytics/infrastructure/prediction"
	"github.com/missatech/breach-analytics/infrastructure/repository"
	"github.com/missatech/breach-analytics/pkg/metrics"
	"github.com/missatech/breach-analytics/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRunner(t *testing.T) *usecase.AnalysisRunner {
	t.Helper()
	logger := zaptest.NewLogger(t)

	scorer, err := service.NewRiskScorer(entity.DefaultRiskWeights(), logger)
	require.NoError(t, err)
	builder := service.NewReportBuilder(
		service.NewCostAggregator(logger),
		scorer,
		service.NewCorrelationAnalyzer(logger),
		service.NewDelayCostRegressor(logger),
		service.NewDelaySimulator(logger),
		logger,
	)

	forestCfg := prediction.DefaultForestConfig()
	forestCfg.Trees = 20

	runner, err := usecase.NewAnalysisRunner(
		repository.NewMemorySource(repository.SampleRegister(), logger),
		builder,
		cache.NewMemoryReportCache(8),
		nil,
		nil,
		forestCfg,
		prediction.DefaultClustererConfig(),
		service.DefaultReportParams(),
		logger,
	)
	require.NoError(t, err)
	return runner
}

func newTestServer(t *testing.T, cfg Config, checks map[string]HealthChecker) *Server {
	t.Helper()
	server, err := NewServer(cfg, newTestRunner(t), metrics.NewCollector("breach_analytics"), checks, zaptest.NewLogger(t))
	require.NoError(t, err)
	return server
}

func doRequest(server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

type failingCheck struct{}

func (failingCheck) Health(context.Context) error { return errors.New("connection refused") }

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"auth enabled without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"rate limit without budget", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	w := doRequest(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "breach-analytics", body["service"])
}

func TestReadyz(t *testing.T) {
	t.Run("healthy backends", func(t *testing.T) {
		server := newTestServer(t, DefaultConfig(), map[string]HealthChecker{
			"cache": cache.NewMemoryReportCache(4),
		})

		w := doRequest(server, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Ready      bool              `json:"ready"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Ready)
		assert.Equal(t, "ok", body.Components["cache"])
		assert.Equal(t, "cold", body.Components["cost_predictor"])
	})

	t.Run("failing backend", func(t *testing.T) {
		server := newTestServer(t, DefaultConfig(), map[string]HealthChecker{
			"register": failingCheck{},
		})

		w := doRequest(server, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body struct {
			Ready      bool              `json:"ready"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Ready)
		assert.Contains(t, body.Components["register"], "connection refused")
	})
}

func TestReports_BeforeAnyRun(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	w := doRequest(server, http.MethodGet, "/api/v1/reports/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(server, http.MethodGet, "/api/v1/reports/latest/sections/overview", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisFlow(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	w := doRequest(server, http.MethodPost, "/api/v1/analysis/runs", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		RunID  uuid.UUID              `json:"run_id"`
		Report entity.ExecutiveReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.RunID)
	assert.Equal(t, 100, created.Report.IncidentCount)
	assert.NotNil(t, created.Report.Overview)

	t.Run("latest report", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/latest", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var report entity.ExecutiveReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, created.RunID, report.RunID)
		assert.Equal(t, 100, report.IncidentCount)
	})

	t.Run("section lookup", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/latest/sections/overview", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var section struct {
			RunID   uuid.UUID       `json:"run_id"`
			Section string          `json:"section"`
			Data    json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &section))
		assert.Equal(t, created.RunID, section.RunID)
		assert.Equal(t, entity.SectionOverview, section.Section)

		var overview entity.DatasetOverview
		require.NoError(t, json.Unmarshal(section.Data, &overview))
		assert.Equal(t, 100, overview.TotalIncidents)
	})

	t.Run("unknown section", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/latest/sections/bogus", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown report section")
	})

	t.Run("report by run id", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/runs/"+created.RunID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var report entity.ExecutiveReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, created.Report.ID, report.ID)
	})

	t.Run("malformed run id", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/runs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown run id", func(t *testing.T) {
		w := doRequest(server, http.MethodGet, "/api/v1/reports/runs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPredictions(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	input := entity.PredictionInput{
		System:            "Billing",
		Region:            "eu-west2",
		AttackType:        "Misconfiguration",
		SensitivityLevel:  4,
		RecordsExposed:    5000,
		DetectionTimeDays: 12,
		ResponseTimeDays:  3,
	}

	t.Run("before any run", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/predictions", input)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	w := doRequest(server, http.MethodPost, "/api/v1/analysis/runs", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("valid input", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/predictions", input)
		require.Equal(t, http.StatusOK, w.Code)

		var result entity.PredictionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Greater(t, result.PredictedCost, 0.0)
		assert.Equal(t, "cost_predictor", result.ModelName)
		assert.Equal(t, "v1", result.SchemaVersion)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid sensitivity", func(t *testing.T) {
		bad := input
		bad.SensitivityLevel = 9
		w := doRequest(server, http.MethodPost, "/api/v1/predictions", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown attack type", func(t *testing.T) {
		bad := input
		bad.AttackType = "Zero-Day"
		w := doRequest(server, http.MethodPost, "/api/v1/predictions", bad)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestSimulations(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	w := doRequest(server, http.MethodPost, "/api/v1/analysis/runs", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("savings projection", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/simulations",
			map[string]interface{}{"target_detection_days": 4.0})
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Kind   string                   `json:"kind"`
			Result entity.SavingsProjection `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "projection", body.Kind)
		assert.Greater(t, body.Result.ProjectedSavings, 0.0)
		assert.Equal(t, 4.0, body.Result.TargetDelayDays)
	})

	t.Run("target above current mean", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/simulations",
			map[string]interface{}{"target_detection_days": 50.0})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("counterfactual", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/simulations",
			map[string]interface{}{"detection_cut_days": 7.0, "response_cut_days": 2.0})
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Kind   string                       `json:"kind"`
			Result entity.CounterfactualSavings `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "counterfactual", body.Kind)
		assert.Greater(t, body.Result.Savings, 0.0)
	})

	t.Run("no mode selected", func(t *testing.T) {
		w := doRequest(server, http.MethodPost, "/api/v1/simulations", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, DefaultConfig(), nil)

	doRequest(server, http.MethodGet, "/healthz", nil)

	w := doRequest(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "breach_analytics_http_requests_total")
}
