package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"consensus-radar/internal/api"
	"consensus-radar/internal/logger"
)

// FnGuide reports monetary amounts in hundred-million KRW, same as
// Naver, but through a JSON API instead of an HTML page.
const fnGuideScale = 100

// FnGuideClient pulls annual consensus rows from the provider's JSON
// endpoint.
type FnGuideClient struct {
	client  *api.Client
	limiter *RateLimiter
}

func NewFnGuideClient(baseURL string, timeout time.Duration, limiter *RateLimiter) *FnGuideClient {
	return &FnGuideClient{
		client: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(timeout),
			api.WithHeaders(api.BrowserHeaders()),
		),
		limiter: limiter,
	}
}

func (c *FnGuideClient) Name() string { return "FNGUIDE" }

type fnAnnualResponse struct {
	Items []struct {
		FiscalYear      int      `json:"fiscal_year"`
		IsConsensus     bool     `json:"is_consensus"`
		Revenue         *float64 `json:"revenue"`
		OperatingProfit *float64 `json:"operating_profit"`
		NetIncome       *float64 `json:"net_income"`
		EPS             *float64 `json:"eps"`
		PER             *float64 `json:"per"`
		ROE             *float64 `json:"roe"`
	} `json:"items"`
}

// FetchAnnual requests the consensus endpoint for one company. A
// malformed payload counts as "no data"; transport failures and
// unexpected statuses are errors.
func (c *FnGuideClient) FetchAnnual(ctx context.Context, code string) ([]AnnualFigures, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, status, err := c.client.Get(ctx, fmt.Sprintf("/api/company/%s/consensus/annual", code))
	if err != nil {
		return nil, fmt.Errorf("fnguide fetch %s: %w", code, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fnguide fetch %s: unexpected status %d", code, status)
	}

	var payload fnAnnualResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn(ctx, "Unparseable provider payload, treating as no data",
			"source", c.Name(), "code", code, "error", err)
		return nil, nil
	}

	figures := make([]AnnualFigures, 0, len(payload.Items))
	for _, item := range payload.Items {
		figures = append(figures, AnnualFigures{
			FiscalYear:      item.FiscalYear,
			IsEstimate:      item.IsConsensus,
			Revenue:         scaled(item.Revenue, fnGuideScale),
			OperatingProfit: scaled(item.OperatingProfit, fnGuideScale),
			NetIncome:       scaled(item.NetIncome, fnGuideScale),
			EPS:             item.EPS,
			PER:             item.PER,
			ROE:             item.ROE,
		})
	}
	if len(figures) == 0 {
		return nil, nil
	}
	return figures, nil
}
