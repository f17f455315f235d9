package threads

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	mediaFields   = "id,media_type,permalink,timestamp,username,owner"
	profileFields = "id,username,name,threads_profile_picture_url,threads_biography"
	mediaMetrics  = "views,likes,replies,reposts,quotes,shares"
)

// timestampLayout is the Graph API's ISO-8601 variant without a colon in the offset.
const timestampLayout = "2006-01-02T15:04:05-0700"

type (
	mediaPage struct {
		Data   []mediaItem `json:"data"`
		Paging struct {
			Cursors struct {
				Before string `json:"before"`
				After  string `json:"after"`
			} `json:"cursors"`
			Next string `json:"next"`
		} `json:"paging"`
	}

	mediaItem struct {
		ID        string `json:"id"`
		MediaType string `json:"media_type"`
		Permalink string `json:"permalink"`
		Timestamp string `json:"timestamp"`
		Username  string `json:"username"`
		Owner     struct {
			ID string `json:"id"`
		} `json:"owner"`
	}
)

// GetProfile resolves the token's account.
func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	err := c.get(ctx, "profile", "/me", map[string]string{"fields": profileFields}, &profile)
	return profile, err
}

// ListRecentMedia yields the account's posts newest first, following pagination cursors.
// Each call starts a fresh listing. Iteration stops after the first error.
func (c *Client) ListRecentMedia(ctx context.Context, userID string) iter.Seq2[Media, error] {
	return func(yield func(Media, error) bool) {
		after := ""
		seen := 0
		pageCount := 0
		for {
			pageCount++
			page, err := c.listMediaPage(ctx, userID, after)
			if err != nil {
				yield(Media{}, err)
				return
			}

			c.logger.Debug("Retrieved media page",
				zap.Int("page_number", pageCount),
				zap.Int("items_in_page", len(page.Data)),
				zap.Bool("has_more", page.Paging.Next != ""))

			for _, item := range page.Data {
				if c.config.MediaLimit > 0 && seen >= c.config.MediaLimit {
					return
				}
				seen++
				if !yield(item.toMedia(), nil) {
					return
				}
			}

			if len(page.Data) == 0 || page.Paging.Next == "" || page.Paging.Cursors.After == "" {
				return
			}
			after = page.Paging.Cursors.After
		}
	}
}

func (c *Client) listMediaPage(ctx context.Context, userID, after string) (*mediaPage, error) {
	params := map[string]string{
		"fields": mediaFields,
		"limit":  strconv.Itoa(c.config.PageSize),
	}
	if after != "" {
		params["after"] = after
	}

	var page mediaPage
	if err := c.get(ctx, "media_list", "/"+url.PathEscape(userID)+"/threads", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (m mediaItem) toMedia() Media {
	mediaType, _ := NormalizeMediaType(m.MediaType)
	return Media{
		ID:        m.ID,
		MediaType: mediaType,
		RawType:   m.MediaType,
		Permalink: m.Permalink,
		Username:  m.Username,
		OwnerID:   m.Owner.ID,
		Timestamp: parseTimestamp(m.Timestamp),
	}
}

// parseTimestamp returns the zero time when s is not a recognised timestamp.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// GetMediaInsights returns the lifetime metrics of one post.
// A deleted or unknown media id surfaces as an *UpstreamError.
func (c *Client) GetMediaInsights(ctx context.Context, mediaID string) (MediaInsights, error) {
	var resp insightsResponse
	params := map[string]string{"metric": mediaMetrics}
	if err := c.get(ctx, "media_insights", "/"+url.PathEscape(mediaID)+"/insights", params, &resp); err != nil {
		return MediaInsights{}, err
	}

	values := resp.byName()
	return MediaInsights{
		Views:   values["views"].total(),
		Likes:   values["likes"].total(),
		Replies: values["replies"].total(),
		Reposts: values["reposts"].total(),
		Quotes:  values["quotes"].total(),
		Shares:  values["shares"].total(),
	}, nil
}
