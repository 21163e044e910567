package market

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher reads daily bars from the Yahoo Finance chart API
type YahooFetcher struct {
	client  *httpClient
	baseURL string
}

var _ Fetcher = (*YahooFetcher)(nil)

// NewYahooFetcher creates a Yahoo Finance fetcher
func NewYahooFetcher(client *httpClient) *YahooFetcher {
	return &YahooFetcher{client: client, baseURL: yahooBaseURL}
}

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		LongName  string `json:"longName"`
		ShortName string `json:"shortName"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Source returns yahoo_finance
func (y *YahooFetcher) Source() models.PriceSource {
	return models.SourceYahooFinance
}

// FetchBars returns daily bars for symbol, or nil on any provider failure
func (y *YahooFetcher) FetchBars(ctx context.Context, symbol string, start, end *time.Time) []RawBar {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("events", "div,split")
	params.Set("includeAdjustedClose", "true")

	if start == nil && end == nil {
		params.Set("range", "max")
	} else {
		from := time.Unix(0, 0).UTC()
		if start != nil {
			from = models.DateOnly(*start)
		}
		to := models.DateOnly(time.Now().UTC())
		if end != nil {
			to = models.DateOnly(*end)
		}
		params.Set("period1", strconv.FormatInt(from.Unix(), 10))
		// period2 is exclusive
		params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	}

	result, err := y.chart(ctx, symbol, params)
	if err != nil {
		logger.Warn("yahoo finance bar fetch failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}

	bars := parseYahooBars(result)

	filtered := bars[:0]
	for _, bar := range bars {
		if inRange(bar.Date, start, end) {
			filtered = append(filtered, bar)
		}
	}

	logger.Debug("yahoo finance bars fetched",
		zap.String("symbol", symbol),
		zap.Int("bars", len(filtered)),
	)

	return filtered
}

// FetchDescription returns the instrument's long name
func (y *YahooFetcher) FetchDescription(ctx context.Context, symbol string) string {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")

	result, err := y.chart(ctx, symbol, params)
	if err != nil {
		logger.Warn("yahoo finance metadata fetch failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return models.DescriptionPlaceholder
	}

	switch {
	case result.Meta.LongName != "":
		return result.Meta.LongName
	case result.Meta.ShortName != "":
		return result.Meta.ShortName
	default:
		return models.DescriptionPlaceholder
	}
}

func (y *YahooFetcher) chart(ctx context.Context, symbol string, params url.Values) (*yahooChartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())

	var resp yahooChartResponse
	if err := y.client.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result")
	}

	return &resp.Chart.Result[0], nil
}

// parseYahooBars zips the columnar chart arrays into bars, skipping rows with missing OHLC
func parseYahooBars(r *yahooChartResult) []RawBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]RawBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, okO := at(q.Open, i)
		high, okH := at(q.High, i)
		low, okL := at(q.Low, i)
		closePrice, okC := at(q.Close, i)
		if !okO || !okH || !okL || !okC {
			continue
		}

		bar := RawBar{
			Date:  models.DateOnly(time.Unix(ts+r.Meta.GMTOffset, 0).UTC()),
			Open:  open,
			High:  high,
			Low:   low,
			Close: closePrice,
		}
		if v, ok := at(adj, i); ok {
			bar.AdjClose = &v
		}
		if v, ok := at(q.Volume, i); ok {
			vol := int64(math.Round(v))
			bar.Volume = &vol
		}

		bars = append(bars, bar)
	}

	return bars
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	v := *values[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
