package prediction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/internal/model"
	"go-inventory-predict/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

var scoreColumns = []string{
	"ProductId",
	"ConsumptionRate",
	"AverageTimeBetweenPurchases",
	"AveragePurchaseSize",
	"Reorder",
	"StockLevel",
	"TotalOrders",
}

// Positions inside a response row.
const (
	colProductID   = 0
	colReorder     = 7
	colProbability = 8
)

type stringTable struct {
	ColumnNames []string   `json:"ColumnNames"`
	Values      [][]string `json:"Values"`
}

type scoreRequest struct {
	Inputs           map[string]stringTable `json:"Inputs"`
	GlobalParameters map[string]string      `json:"GlobalParameters"`
}

type scoreResponse struct {
	Results struct {
		Output1 struct {
			Value struct {
				Values [][]any `json:"Values"`
			} `json:"value"`
		} `json:"output1"`
	} `json:"Results"`
}

// ScoreError is returned when the endpoint answers with a non-2xx status.
type ScoreError struct {
	Status int
	Body   string
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("scorer returned %d: %s", e.Status, e.Body)
}

// AzureScorer calls an Azure ML style batch execution endpoint.
type AzureScorer struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func NewAzureScorer(url, apiKey string, timeout time.Duration) *AzureScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AzureScorer{url: url, apiKey: apiKey, timeout: timeout}
}

func (s *AzureScorer) Score(ctx context.Context, trends []model.ProductStockTrend) ([]ScoreLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildScoreRequest(trends))
	if err != nil {
		return nil, err
	}

	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	start := time.Now()
	a := fiber.Post(s.url)
	a.Set(fiber.HeaderAuthorization, "Bearer "+s.apiKey)
	a.ContentType(fiber.MIMEApplicationJSON)
	a.Body(body)
	a.Timeout(timeout)
	if err := a.Parse(); err != nil {
		return nil, fmt.Errorf("scorer request: %w", err)
	}

	code, resp, errs := a.Bytes()
	metrics.ScorerLatency.WithLabelValues("azure").Observe(time.Since(start).Seconds())
	if len(errs) > 0 {
		return nil, fmt.Errorf("scorer request: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		logger.Debug("scorer request failed", "status", code, "body", string(resp))
		return nil, &ScoreError{Status: code, Body: string(resp)}
	}

	return parseScoreResponse(resp)
}

func buildScoreRequest(trends []model.ProductStockTrend) scoreRequest {
	rows := make([][]string, 0, len(trends))
	for i := range trends {
		t := &trends[i]
		rows = append(rows, []string{
			strconv.Itoa(t.ProductID),
			formatFloat(t.AvgPurchasesPerDay()),
			formatFloat(t.AvgTimeBetweenPurchases()),
			formatFloat(t.AvgQuantityPerOrder()),
			"True",
			strconv.Itoa(t.LastStockCount),
			strconv.Itoa(t.TotalPurchases()),
		})
	}
	return scoreRequest{
		Inputs: map[string]stringTable{
			"input1": {ColumnNames: scoreColumns, Values: rows},
		},
		GlobalParameters: map[string]string{},
	}
}

func parseScoreResponse(body []byte) ([]ScoreLine, error) {
	var resp scoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}

	rows := resp.Results.Output1.Value.Values
	lines := make([]ScoreLine, 0, len(rows))
	for i, row := range rows {
		if len(row) <= colProbability {
			return nil, fmt.Errorf("scorer row %d has %d columns", i, len(row))
		}
		id, err := cellInt(row[colProductID])
		if err != nil {
			return nil, fmt.Errorf("scorer row %d productId: %w", i, err)
		}
		reorder, err := cellBool(row[colReorder])
		if err != nil {
			return nil, fmt.Errorf("scorer row %d reorder: %w", i, err)
		}
		prob, err := cellFloat(row[colProbability])
		if err != nil {
			return nil, fmt.Errorf("scorer row %d probability: %w", i, err)
		}
		lines = append(lines, ScoreLine{ProductID: id, Reorder: reorder, Probability: float32(prob)})
	}
	return lines, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Cells come back as strings from the string-table schema but numeric
// encodings are accepted too.
func cellFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unexpected cell %v", v)
	}
}

func cellInt(v any) (int, error) {
	f, err := cellFloat(v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func cellBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case float64:
		return x != 0, nil
	default:
		return false, fmt.Errorf("unexpected cell %v", v)
	}
}
