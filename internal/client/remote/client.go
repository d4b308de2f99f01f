// Package remote implements the store accessor: typed reads, writes and
// object uploads against the CampusFix backend. It performs no caching; the
// fallback cache and the reconciler sit above it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

// AccessTokenHeader carries the bearer access token.
const AccessTokenHeader = "Authorization"

// Client talks JSON over HTTP to the backend. It holds the access/refresh
// token pair and transparently refreshes an expired access token once per
// request, mirroring the usual interceptor pattern.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger

	accessToken  string
	refreshToken string
	userID       string
}

func NewClient(baseURL string, logger logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("module", "remote"),
	}
}

// tokenPair is the auth response shape.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/register", credentials{Username: username, Password: password}, nil)
}

// Login obtains a token pair and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var pair tokenPair
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", credentials{Username: username, Password: password}, &pair); err != nil {
		return err
	}
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	c.userID = pair.UserID
	return nil
}

// AccessToken returns the current access token, for the realtime handshake.
func (c *Client) AccessToken() string { return c.accessToken }

// UserID identifies the logged-in user; empty before Login.
func (c *Client) UserID() string { return c.userID }

func (c *Client) refresh(ctx context.Context) error {
	if c.refreshToken == "" {
		return remoteErr("refresh", "", KindUnauthorized, models.ErrTokenExpired)
	}
	var pair tokenPair
	body := map[string]string{"refreshToken": c.refreshToken}
	if err := c.doJSONNoRetry(ctx, http.MethodPost, "/api/refresh", body, &pair); err != nil {
		return err
	}
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	return nil
}

// doJSON issues one request and, on a 401, refreshes the token pair and
// replays the request once.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	err := c.doJSONNoRetry(ctx, method, path, in, out)

	var re *RemoteError
	if errors.As(err, &re) && re.Kind == KindUnauthorized && c.refreshToken != "" && path != "/api/refresh" {
		if rerr := c.refresh(ctx); rerr != nil {
			return err
		}
		return c.doJSONNoRetry(ctx, method, path, in, out)
	}
	return err
}

func (c *Client) doJSONNoRetry(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return remoteErr(method, "", KindDecode, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return remoteErr(method, "", KindBadRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set(AccessTokenHeader, "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remoteErr(method, "", KindNetwork, err)
	}
	defer resp.Body.Close()

	if err := statusError(method, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remoteErr(method, "", KindDecode, err)
	}
	return nil
}

// statusError maps an HTTP status to the error taxonomy. 2xx maps to nil.
func statusError(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return remoteErr(op, "", KindBadRequest, models.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return remoteErr(op, "", KindUnauthorized, readAPIError(resp))
	case resp.StatusCode >= 500:
		return remoteErr(op, "", KindServer, readAPIError(resp))
	default:
		return remoteErr(op, "", KindBadRequest, readAPIError(resp))
	}
}

func readAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return fmt.Errorf("http status %d", resp.StatusCode)
}
