package threads

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ifuryst/threads-insights/internal/config"
	"github.com/ifuryst/threads-insights/internal/models"
)

type (
	// Media is one post from the account's media list.
	Media struct {
		ID        string
		MediaType models.MediaType
		// RawType is the type string as the API reported it.
		RawType   string
		Permalink string
		Username  string
		OwnerID   string
		Timestamp time.Time
	}

	MediaInsights struct {
		Views   int64
		Likes   int64
		Replies int64
		Reposts int64
		Quotes  int64
		Shares  int64
	}

	UserInsights struct {
		Views          int64
		Likes          int64
		Replies        int64
		Reposts        int64
		Quotes         int64
		Clicks         int64
		FollowersCount int64
	}

	LinkClicks struct {
		LinkURL string
		Clicks  int64
	}

	DemographicValue struct {
		Key   string
		Value int64
	}

	Profile struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		Name              string `json:"name"`
		ProfilePictureURL string `json:"threads_profile_picture_url"`
		Biography         string `json:"threads_biography"`
	}
)

// Client calls the Threads Graph API insights endpoints. Every call is a single attempt.
type Client struct {
	config  *config.ThreadsConfig
	logger  *zap.Logger
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(cfg *config.ThreadsConfig, logger *zap.Logger) *Client {
	tr := &http.Transport{
		IdleConnTimeout:       120 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		TLSHandshakeTimeout:   20 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}

	httpClient := resty.New().
		SetTransport(tr).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.AccessToken != "" {
		httpClient.SetAuthToken(cfg.AccessToken)
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:  cfg,
		logger:  logger,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// NormalizeMediaType maps the API's media_type onto the stored enum.
// The second result is false for types that are not stored, such as reposts.
func NormalizeMediaType(raw string) (models.MediaType, bool) {
	switch strings.ToUpper(raw) {
	case "TEXT_POST", "TEXT":
		return models.MediaTypeText, true
	case "IMAGE":
		return models.MediaTypeImage, true
	case "VIDEO":
		return models.MediaTypeVideo, true
	case "CAROUSEL_ALBUM":
		return models.MediaTypeCarouselAlbum, true
	}
	return "", false
}
