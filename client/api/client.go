// Package api is the REST client of the ranked4 game services.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 10 * time.Second

	pathMatchmakingJoin  = "/matchmaking/join"
	pathMatchmakingLeave = "/matchmaking/leave"
	pathPrivateMatches   = "/private-matches"
	pathPrivateJoin      = "/private-matches/join"
	pathPrivateStart     = "/private-matches/start"
	pathPrivateLobby     = "/private-matches/{code}"
	pathPveGame          = "/game/pve"
	pathMyProfile        = "/profile/me"
	pathProfile          = "/profile/{userID}"
)

var (
	ErrRequest          = errors.New("request failed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrEmptyResponse    = errors.New("empty response body")
)

type (
	Config struct {
		Logger  *zerolog.Logger
		BaseURL string
		// Token is sent as a bearer token with every request.
		Token   string
		Timeout time.Duration
		// HTTPClient overrides the transport, e.g. in tests.
		HTTPClient *http.Client
	}

	Client struct {
		logger zerolog.Logger
		rc     *resty.Client
	}

	// StatusError carries a non 2xx response.
	StatusError struct {
		Method  string
		Path    string
		Code    int
		Message string
	}

	errorBody struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

func New(cfg Config) *Client {
	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc.SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	c := &Client{
		logger: cfg.Logger.With().Str("component", "api-client").Logger(),
		rc:     rc,
	}
	rc.SetLogger(restyLogger{logger: &c.logger})
	return c
}

// restyLogger routes resty's own diagnostics to zerolog.
type restyLogger struct {
	logger *zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (c *Client) JoinMatchmaking(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathMatchmakingJoin, c.rc.R().SetBody(struct{}{}), false)
}

func (c *Client) LeaveMatchmaking(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathMatchmakingLeave, c.rc.R().SetBody(struct{}{}), false)
}

func (c *Client) CreatePrivateMatch(ctx context.Context) (*model.PrivateMatch, error) {
	var out model.PrivateMatch
	req := c.rc.R().SetBody(struct{}{}).SetResult(&out)
	if err := c.do(ctx, http.MethodPost, pathPrivateMatches, req, true); err != nil {
		return nil, err
	}
	if out.Code == "" {
		return nil, errors.Join(ErrEmptyResponse, errors.New("private match without code"))
	}
	return &out, nil
}

func (c *Client) JoinPrivateMatch(ctx context.Context, code string) error {
	req := c.rc.R().SetBody(model.PrivateCodeRequest{Code: code})
	return c.do(ctx, http.MethodPost, pathPrivateJoin, req, false)
}

func (c *Client) StartPrivateMatch(ctx context.Context, code string) (*model.PrivateMatchStart, error) {
	var out model.PrivateMatchStart
	req := c.rc.R().SetBody(model.PrivateCodeRequest{Code: code}).SetResult(&out)
	if err := c.do(ctx, http.MethodPost, pathPrivateStart, req, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PrivateLobby(ctx context.Context, code string) (*model.PrivateLobby, error) {
	var out model.PrivateLobby
	req := c.rc.R().SetPathParam("code", code).SetResult(&out)
	if err := c.do(ctx, http.MethodGet, pathPrivateLobby, req, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePveGame(ctx context.Context, difficulty int) (*model.PveGame, error) {
	var out model.PveGame
	req := c.rc.R().
		SetQueryParam("difficulty", strconv.Itoa(difficulty)).
		SetBody(struct{}{}).
		SetResult(&out)
	if err := c.do(ctx, http.MethodPost, pathPveGame, req, true); err != nil {
		return nil, err
	}
	if out.GameID == "" {
		return nil, errors.Join(ErrEmptyResponse, errors.New("pve game without id"))
	}
	return &out, nil
}

func (c *Client) MyProfile(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	req := c.rc.R().SetResult(&out)
	if err := c.do(ctx, http.MethodGet, pathMyProfile, req, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	var out model.Profile
	req := c.rc.R().SetPathParam("userID", userID).SetResult(&out)
	if err := c.do(ctx, http.MethodGet, pathProfile, req, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, req *resty.Request, wantBody bool) error {
	logger := c.logger.With().Str("method", method).Str("path", path).Logger()

	resp, err := req.SetContext(ctx).SetError(&errorBody{}).Execute(method, path)
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		return errors.Join(ErrRequest, err)
	}
	if resp.IsError() {
		statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode()}
		if eb, ok := resp.Error().(*errorBody); ok && eb != nil {
			statusErr.Message = eb.Message
			if statusErr.Message == "" {
				statusErr.Message = eb.Error
			}
		}
		logger.Error().Int("status", statusErr.Code).Str("message", statusErr.Message).Msg("unexpected response")
		return errors.Join(ErrUnexpectedStatus, statusErr)
	}
	if wantBody && len(resp.Body()) == 0 {
		return errors.Join(ErrEmptyResponse, fmt.Errorf("%s %s", method, path))
	}
	logger.Trace().Int("status", resp.StatusCode()).Dur("took", resp.Time()).Msg("request done")
	return nil
}
