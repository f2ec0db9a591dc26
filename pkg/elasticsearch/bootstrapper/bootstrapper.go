package bootstrapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

const resourceAlreadyExists = "resource_already_exists_exception"

type Bootstrapper struct {
	esClient *elasticsearch.Client
	retries  int
	delay    time.Duration
	logger   *zap.Logger
}

func NewBootstrapper(esClient *elasticsearch.Client, retries int, delay time.Duration, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		esClient: esClient,
		retries:  retries,
		delay:    delay,
		logger:   logger,
	}
}

func (bs *Bootstrapper) BootstrapElasticsearch(ctx context.Context) error {
	if err := bs.waitForElasticsearch(ctx); err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	if err := bs.createIndex(ctx, IntervalIndexName, intervalIndex); err != nil {
		return fmt.Errorf("error creating interval index: %w", err)
	}

	return nil
}

func (bs *Bootstrapper) waitForElasticsearch(ctx context.Context) error {
	for i := 0; i < bs.retries; i++ {
		res, err := bs.esClient.Info(bs.esClient.Info.WithContext(ctx))
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				bs.logger.Info("Elasticsearch is available")
				return nil
			}
		}
		bs.logger.Warn(fmt.Sprintf("Elasticsearch not available (attempt %d/%d), retrying...", i+1, bs.retries))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bs.delay):
		}
	}

	return fmt.Errorf("Elasticsearch is not available after %d attempts", bs.retries)
}

func (bs *Bootstrapper) createIndex(ctx context.Context, indexName string, index map[string]interface{}) error {
	body, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("error marshaling index input during bootstrap: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, bs.esClient)
	if err != nil {
		return fmt.Errorf("error creating index during bootstrap %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if strings.Contains(res.String(), resourceAlreadyExists) {
			bs.logger.Info("Index already exists", zap.String("index_name", indexName))
			return nil
		}
		return fmt.Errorf("error response for index %s: %s", indexName, res.String())
	}

	bs.logger.Info("Successfully created index", zap.String("index_name", indexName))
	return nil
}
