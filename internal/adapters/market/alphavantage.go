package market

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

const (
	alphaVantageBaseURL = "https://www.alphavantage.co"
	// compact output covers roughly the last 100 trading days
	compactWindow = 100 * 24 * time.Hour
)

// AlphaVantageFetcher reads daily adjusted bars from Alpha Vantage
type AlphaVantageFetcher struct {
	client  *httpClient
	apiKey  string
	baseURL string
}

var _ Fetcher = (*AlphaVantageFetcher)(nil)

// NewAlphaVantageFetcher creates an Alpha Vantage fetcher
func NewAlphaVantageFetcher(client *httpClient, apiKey string) *AlphaVantageFetcher {
	return &AlphaVantageFetcher{client: client, apiKey: apiKey, baseURL: alphaVantageBaseURL}
}

type alphaVantageDaily struct {
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
}

type alphaVantageOverview struct {
	Symbol string `json:"Symbol"`
	Name   string `json:"Name"`
}

// Source returns alpha_vantage
func (a *AlphaVantageFetcher) Source() models.PriceSource {
	return models.SourceAlphaVantage
}

// FetchBars returns daily adjusted bars for symbol, or nil on any provider failure
func (a *AlphaVantageFetcher) FetchBars(ctx context.Context, symbol string, start, end *time.Time) []RawBar {
	outputSize := "full"
	if start != nil && time.Since(*start) < compactWindow {
		outputSize = "compact"
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)
	params.Set("apikey", a.apiKey)

	var resp alphaVantageDaily
	if err := a.client.getJSON(ctx, a.baseURL+"/query?"+params.Encode(), &resp); err != nil {
		logger.Warn("alpha vantage bar fetch failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}

	if msg := firstNonEmpty(resp.ErrorMessage, resp.Note, resp.Information); msg != "" {
		logger.Warn("alpha vantage rejected request",
			zap.String("symbol", symbol),
			zap.String("message", msg),
		)
		return nil
	}

	bars, err := parseAlphaVantageBars(resp.TimeSeries, start, end)
	if err != nil {
		logger.Warn("alpha vantage payload malformed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}

	return bars
}

// FetchDescription returns the company name from the OVERVIEW endpoint
func (a *AlphaVantageFetcher) FetchDescription(ctx context.Context, symbol string) string {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)

	var resp alphaVantageOverview
	if err := a.client.getJSON(ctx, a.baseURL+"/query?"+params.Encode(), &resp); err != nil {
		logger.Warn("alpha vantage overview fetch failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return models.DescriptionPlaceholder
	}

	if resp.Name == "" {
		return models.DescriptionPlaceholder
	}
	return resp.Name
}

func parseAlphaVantageBars(series map[string]map[string]string, start, end *time.Time) ([]RawBar, error) {
	bars := make([]RawBar, 0, len(series))

	for day, fields := range series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", day, err)
		}
		if !inRange(date, start, end) {
			continue
		}

		bar := RawBar{Date: date}
		var parseErr error
		num := func(key string) float64 {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[key]), 64)
			if err != nil && parseErr == nil {
				parseErr = fmt.Errorf("%s on %s: %w", key, day, err)
			}
			return v
		}

		bar.Open = num("1. open")
		bar.High = num("2. high")
		bar.Low = num("3. low")
		bar.Close = num("4. close")
		if parseErr != nil {
			return nil, parseErr
		}

		if raw, ok := fields["5. adjusted close"]; ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				bar.AdjClose = &v
			}
		}
		if raw, ok := fields["6. volume"]; ok {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				bar.Volume = &v
			}
		}

		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return bars, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
