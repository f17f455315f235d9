package threads

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/config"
)

const oauthScope = "threads_basic,threads_manage_insights"

// Token is the body of every token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// OAuth walks the Threads authorization-code flow and manages long-lived tokens.
type OAuth struct {
	config *config.ThreadsConfig
	logger *zap.Logger
	http   *resty.Client
	client *Client
}

func NewOAuth(cfg *config.ThreadsConfig, client *Client, logger *zap.Logger) *OAuth {
	return &OAuth{
		config: cfg,
		logger: logger,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.GraphURL, "/")).
			SetTimeout(cfg.Timeout).
			SetJSONMarshaler(json.Marshal).
			SetJSONUnmarshaler(json.Unmarshal),
		client: client,
	}
}

// Configured reports whether app credentials are present.
func (o *OAuth) Configured() bool {
	return o.config.AppID != "" && o.config.AppSecret != "" && o.config.RedirectURI != ""
}

// AuthorizeURL returns the consent URL and the state it embeds. An empty state gets a random one.
func (o *OAuth) AuthorizeURL(state string) (string, string) {
	if state == "" {
		state = uuid.NewString()
	}
	params := url.Values{}
	params.Set("client_id", o.config.AppID)
	params.Set("redirect_uri", o.config.RedirectURI)
	params.Set("scope", oauthScope)
	params.Set("response_type", "code")
	params.Set("state", state)
	return o.config.AuthorizeURL + "?" + params.Encode(), state
}

// ExchangeCode trades an authorization code for a short-lived token.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (Token, error) {
	if code == "" {
		return Token{}, errors.New("missing authorization code")
	}
	resp, err := o.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     o.config.AppID,
			"client_secret": o.config.AppSecret,
			"grant_type":    "authorization_code",
			"redirect_uri":  o.config.RedirectURI,
			"code":          code,
		}).
		Post("/oauth/access_token")
	return o.decodeToken("oauth_access_token", resp, err)
}

// ExchangeLongLived trades a short-lived token for a 60-day token.
func (o *OAuth) ExchangeLongLived(ctx context.Context, shortLived string) (Token, error) {
	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "th_exchange_token",
			"client_secret": o.config.AppSecret,
			"access_token":  shortLived,
		}).
		Get("/access_token")
	return o.decodeToken("exchange_token", resp, err)
}

// Refresh extends a long-lived token that is at least a day old and not yet expired.
func (o *OAuth) Refresh(ctx context.Context, longLived string) (Token, error) {
	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":   "th_refresh_token",
			"access_token": longLived,
		}).
		Get("/refresh_access_token")
	return o.decodeToken("refresh_token", resp, err)
}

// Profile fetches the account behind an arbitrary token.
func (o *OAuth) Profile(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	req := o.client.http.R().
		SetAuthToken(token).
		SetQueryParam("fields", profileFields)
	err := o.client.do(ctx, "profile", req, "/me", &profile)
	return profile, err
}

func (o *OAuth) decodeToken(endpoint string, resp *resty.Response, err error) (Token, error) {
	if err != nil {
		return Token{}, &UpstreamError{Endpoint: endpoint, Err: err}
	}
	if err := checkResponse(endpoint, resp.StatusCode(), resp.Body()); err != nil {
		return Token{}, err
	}

	var token Token
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return Token{}, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode(), Err: err}
	}
	if token.AccessToken == "" {
		return Token{}, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode(), Message: "response has no access_token"}
	}

	o.logger.Info("Obtained Threads token", zap.String("endpoint", endpoint), zap.Int64("expires_in", token.ExpiresIn))
	return token, nil
}
