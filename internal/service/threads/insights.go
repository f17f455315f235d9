package threads

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ifuryst/threads-insights/internal/models"
)

const (
	userTotalMetrics   = "likes,replies,reposts,quotes,clicks,followers_count"
	demographicsMetric = "follower_demographics"
)

type (
	insightsResponse struct {
		Data []insightMetric `json:"data"`
	}

	insightMetric struct {
		Name   string `json:"name"`
		Period string `json:"period"`
		Values []struct {
			Value   int64  `json:"value"`
			EndTime string `json:"end_time"`
		} `json:"values"`
		TotalValue *struct {
			Value      int64       `json:"value"`
			Breakdowns []breakdown `json:"breakdowns"`
		} `json:"total_value"`
		LinkTotalValues []struct {
			Value   int64  `json:"value"`
			LinkURL string `json:"link_url"`
		} `json:"link_total_values"`
	}

	breakdown struct {
		DimensionKeys []string `json:"dimension_keys"`
		Results       []struct {
			DimensionValues []string `json:"dimension_values"`
			Value           int64    `json:"value"`
		} `json:"results"`
	}
)

func (r insightsResponse) byName() map[string]insightMetric {
	out := make(map[string]insightMetric, len(r.Data))
	for _, m := range r.Data {
		out[m.Name] = m
	}
	return out
}

// total prefers total_value, then link totals, then the sum of the time series.
func (m insightMetric) total() int64 {
	if m.TotalValue != nil {
		return m.TotalValue.Value
	}
	var sum int64
	if len(m.LinkTotalValues) > 0 {
		for _, v := range m.LinkTotalValues {
			sum += v.Value
		}
		return sum
	}
	for _, v := range m.Values {
		sum += v.Value
	}
	return sum
}

// dayRange returns the since/until query parameters covering the calendar day that starts at day.
func dayRange(day time.Time) map[string]string {
	return map[string]string{
		"since": strconv.FormatInt(day.Unix(), 10),
		"until": strconv.FormatInt(day.AddDate(0, 0, 1).Unix(), 10),
	}
}

// GetUserInsightsDaily returns the account snapshot for the day starting at day.
// Views is the value for that day; the other counters are lifetime totals.
func (c *Client) GetUserInsightsDaily(ctx context.Context, userID string, day time.Time) (UserInsights, error) {
	path := "/" + url.PathEscape(userID) + "/threads_insights"

	params := dayRange(day)
	params["metric"] = "views"
	var daily insightsResponse
	if err := c.get(ctx, "user_insights", path, params, &daily); err != nil {
		return UserInsights{}, err
	}

	var totals insightsResponse
	if err := c.get(ctx, "user_insights", path, map[string]string{"metric": userTotalMetrics}, &totals); err != nil {
		return UserInsights{}, err
	}

	values := totals.byName()
	return UserInsights{
		Views:          daily.byName()["views"].total(),
		Likes:          values["likes"].total(),
		Replies:        values["replies"].total(),
		Reposts:        values["reposts"].total(),
		Quotes:         values["quotes"].total(),
		Clicks:         values["clicks"].total(),
		FollowersCount: values["followers_count"].total(),
	}, nil
}

// GetLinkClicks returns clicks per link for the day starting at day.
// The same URL reported twice is merged.
func (c *Client) GetLinkClicks(ctx context.Context, userID string, day time.Time) ([]LinkClicks, error) {
	params := dayRange(day)
	params["metric"] = "clicks"

	var resp insightsResponse
	if err := c.get(ctx, "link_clicks", "/"+url.PathEscape(userID)+"/threads_insights", params, &resp); err != nil {
		return nil, err
	}

	var out []LinkClicks
	index := make(map[string]int)
	for _, v := range resp.byName()["clicks"].LinkTotalValues {
		if v.LinkURL == "" {
			continue
		}
		if i, ok := index[v.LinkURL]; ok {
			out[i].Clicks += v.Value
			continue
		}
		index[v.LinkURL] = len(out)
		out = append(out, LinkClicks{LinkURL: v.LinkURL, Clicks: v.Value})
	}
	return out, nil
}

// GetFollowerDemographics returns the current follower split along one dimension.
func (c *Client) GetFollowerDemographics(ctx context.Context, userID string, breakdownType models.BreakdownType) ([]DemographicValue, error) {
	switch breakdownType {
	case models.BreakdownCountry, models.BreakdownCity, models.BreakdownAge, models.BreakdownGender:
	default:
		return nil, fmt.Errorf("unknown breakdown type %q", breakdownType)
	}

	params := map[string]string{
		"metric":    demographicsMetric,
		"breakdown": string(breakdownType),
	}
	var resp insightsResponse
	if err := c.get(ctx, "follower_demographics", "/"+url.PathEscape(userID)+"/threads_insights", params, &resp); err != nil {
		return nil, err
	}

	metric := resp.byName()[demographicsMetric]
	if metric.TotalValue == nil {
		return nil, nil
	}

	var out []DemographicValue
	for _, b := range metric.TotalValue.Breakdowns {
		for _, r := range b.Results {
			if len(r.DimensionValues) == 0 {
				continue
			}
			out = append(out, DemographicValue{Key: r.DimensionValues[0], Value: r.Value})
		}
	}
	return out, nil
}
