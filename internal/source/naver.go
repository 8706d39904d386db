package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"consensus-radar/internal/logger"
)

// Naver reports monetary amounts in hundred-million KRW; the canonical
// unit is million KRW.
const naverScale = 100

// naverSelectors defines where the annual consensus table lives on the
// company page.
type naverSelectors struct {
	AnnualTable string
	HeaderCell  string
	BodyRow     string
}

// NaverClient scrapes the annual consensus table from a company's
// finance page.
type NaverClient struct {
	baseURL   string
	timeout   time.Duration
	limiter   *RateLimiter
	selectors naverSelectors
}

func NewNaverClient(baseURL string, timeout time.Duration, limiter *RateLimiter) *NaverClient {
	return &NaverClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		limiter: limiter,
		selectors: naverSelectors{
			AnnualTable: "table.tb_type1_ifrs",
			HeaderCell:  "thead th",
			BodyRow:     "tbody tr",
		},
	}
}

func (c *NaverClient) Name() string { return "NAVER" }

// FetchAnnual loads the company page and extracts one AnnualFigures
// per fiscal-year column. A page without the consensus table yields
// (nil, nil): the provider simply has no data for the company.
func (c *NaverClient) FetchAnnual(ctx context.Context, code string) ([]AnnualFigures, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	col := colly.NewCollector(colly.MaxDepth(1))
	col.SetRequestTimeout(c.timeout)

	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9")
	})

	var figures []AnnualFigures
	col.OnHTML(c.selectors.AnnualTable, func(e *colly.HTMLElement) {
		if figures == nil {
			figures = c.parseAnnualTable(e.DOM)
		}
	})

	var transportErr error
	col.OnError(func(r *colly.Response, err error) {
		transportErr = fmt.Errorf("naver fetch %s: status %d: %w", code, r.StatusCode, err)
	})

	pageURL := fmt.Sprintf("%s/item/main.naver?code=%s", c.baseURL, code)
	if err := col.Visit(pageURL); err != nil && transportErr == nil {
		transportErr = fmt.Errorf("naver visit %s: %w", pageURL, err)
	}
	col.Wait()

	if transportErr != nil {
		return nil, transportErr
	}
	if figures == nil {
		logger.Debug(ctx, "No consensus table on provider page", "source", c.Name(), "code", code)
	}
	return figures, nil
}

// parseAnnualTable walks the consensus table: period headers become
// fiscal-year columns, metric rows fill the column values.
func (c *NaverClient) parseAnnualTable(sel *goquery.Selection) []AnnualFigures {
	var figs []AnnualFigures
	sel.Find(c.selectors.HeaderCell).Each(func(_ int, th *goquery.Selection) {
		if year, estimate, ok := parsePeriodHeader(th.Text()); ok {
			figs = append(figs, AnnualFigures{FiscalYear: year, IsEstimate: estimate})
		}
	})
	if len(figs) == 0 {
		return nil
	}

	sel.Find(c.selectors.BodyRow).Each(func(_ int, tr *goquery.Selection) {
		label := strings.TrimSpace(tr.Find("th").First().Text())
		cells := tr.Find("td")

		fill := func(assign func(f *AnnualFigures, v *float64), factor float64) {
			cells.Each(func(i int, td *goquery.Selection) {
				if i >= len(figs) {
					return
				}
				assign(&figs[i], scaled(parseNumber(td.Text()), factor))
			})
		}

		switch {
		case strings.HasPrefix(label, "매출액"):
			fill(func(f *AnnualFigures, v *float64) { f.Revenue = v }, naverScale)
		case strings.HasPrefix(label, "영업이익"):
			fill(func(f *AnnualFigures, v *float64) { f.OperatingProfit = v }, naverScale)
		case strings.HasPrefix(label, "당기순이익"):
			fill(func(f *AnnualFigures, v *float64) { f.NetIncome = v }, naverScale)
		case strings.HasPrefix(label, "EPS"):
			fill(func(f *AnnualFigures, v *float64) { f.EPS = v }, 1)
		case strings.HasPrefix(label, "PER"):
			fill(func(f *AnnualFigures, v *float64) { f.PER = v }, 1)
		case strings.HasPrefix(label, "ROE"):
			fill(func(f *AnnualFigures, v *float64) { f.ROE = v }, 1)
		}
	})

	return figs
}
