package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// ElasticsearchConfig holds connection settings for the incident index.
type ElasticsearchConfig struct {
	Addresses      []string      `mapstructure:"addresses"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	APIKey         string        `mapstructure:"api_key"`
	Index          string        `mapstructure:"index"`
	PageSize       int           `mapstructure:"page_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultElasticsearchConfig returns settings for a local single-node
// cluster.
func DefaultElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		Addresses:      []string{"http://localhost:9200"},
		Index:          "breach-incidents",
		PageSize:       1000,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
	}
}

// Validate checks the index settings.
func (c ElasticsearchConfig) Validate() error {
	if len(c.Addresses) == 0 {
		return entity.NewValidationError("elasticsearch.addresses", "at least one address is required")
	}
	if c.Index == "" {
		return entity.NewValidationError("elasticsearch.index", "index name is required")
	}
	if c.PageSize < 1 {
		return entity.NewValidationError("elasticsearch.page_size", "page size must be at least 1")
	}
	return nil
}

// ElasticsearchSource reads the breach register from an Elasticsearch
// index. Documents use the same field names as the HTTP API, so an index
// fed from exported reports round-trips without remapping.
type ElasticsearchSource struct {
	client *elasticsearch.Client
	cfg    ElasticsearchConfig
	logger *zap.Logger
}

// NewElasticsearchSource builds a source over the configured cluster. The
// constructor performs no I/O; use Health to verify connectivity.
func NewElasticsearchSource(cfg ElasticsearchConfig, logger *zap.Logger) (*ElasticsearchSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:           cfg.Addresses,
		Username:            cfg.Username,
		Password:            cfg.Password,
		APIKey:              cfg.APIKey,
		MaxRetries:          cfg.MaxRetries,
		RetryOnStatus:       []int{502, 503, 504, 429},
		CompressRequestBody: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchSource{
		client: client,
		cfg:    cfg,
		logger: logger.Named("elasticsearch_source"),
	}, nil
}

type searchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
	Sort   []interface{}   `json:"sort"`
}

// FetchIncidents pages through the incident index sorted by id, using
// search_after so registers larger than the result window still load in
// full. Documents failing validation are skipped and logged.
func (s *ElasticsearchSource) FetchIncidents(ctx context.Context) ([]entity.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	var (
		incidents []entity.Incident
		rowsRead  int
		rejected  int
		after     []interface{}
	)

	for {
		query := map[string]interface{}{
			"size": s.cfg.PageSize,
			"sort": []map[string]string{{"id": "asc"}},
			"query": map[string]interface{}{
				"match_all": map[string]interface{}{},
			},
		}
		if after != nil {
			query["search_after"] = after
		}

		page, err := s.search(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(page.Hits.Hits) == 0 {
			break
		}

		for _, hit := range page.Hits.Hits {
			rowsRead++
			var inc entity.Incident
			if err := json.Unmarshal(hit.Source, &inc); err != nil {
				rejected++
				s.logger.Warn("skipping undecodable incident document",
					zap.String("doc_id", hit.ID),
					zap.Error(err))
				continue
			}
			if inc.ID == "" {
				inc.ID = hit.ID
			}
			if err := inc.Validate(); err != nil {
				rejected++
				s.logger.Warn("skipping invalid incident document",
					zap.String("doc_id", hit.ID),
					zap.Error(err))
				continue
			}
			incidents = append(incidents, inc)
		}

		last := page.Hits.Hits[len(page.Hits.Hits)-1]
		if len(last.Sort) == 0 {
			break
		}
		after = last.Sort
	}

	s.logger.Info("incident fetch complete",
		zap.Int("rows_read", rowsRead),
		zap.Int("rows_rejected", rejected))
	return incidents, nil
}

func (s *ElasticsearchSource) search(ctx context.Context, query map[string]interface{}) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.cfg.Index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed with status %s", res.Status())
	}

	var response searchResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &response, nil
}

// Health verifies the cluster responds.
func (s *ElasticsearchSource) Health(ctx context.Context) error {
	req := esapi.PingRequest{}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned status %s", res.Status())
	}
	return nil
}
