// Package slack is a minimal client for the three Slack Web API calls the
// relay needs: chat.postMessage, chat.update, and users.lookupByEmail.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultAPIURL is the Slack Web API base.
const DefaultAPIURL = "https://slack.com"

// Impersonation overrides the posted message's display identity so a
// notification appears to come from the acting user instead of the bot.
type Impersonation struct {
	Username string
	IconURL  string
}

// TransportError describes a failed outbound call: a transport-level error,
// a non-2xx status, or an unusable response body. It is the only error type
// the client returns, so callers can always degrade gracefully.
type TransportError struct {
	Op     string
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("slack %s: %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("slack %s: %s (%d - %s)", e.Op, e.URL, e.Status, e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config carries everything the client needs; no globals.
type Config struct {
	APIURL    string
	Token     string
	Channel   string
	Transport TransportConfig
}

// Client issues outbound Slack calls. Stateless; safe for concurrent use.
type Client struct {
	apiURL  string
	token   string
	channel string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a Client from configuration. The logger must not be nil.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	for len(apiURL) > 0 && apiURL[len(apiURL)-1] == '/' {
		apiURL = apiURL[:len(apiURL)-1]
	}

	return &Client{
		apiURL:  apiURL,
		token:   cfg.Token,
		channel: cfg.Channel,
		http:    newHTTPClient(apiURL, cfg.Transport, logger),
		logger:  logger,
	}
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	Username string `json:"username,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// PostMessage posts text to the configured channel. With an empty threadTS
// Slack starts a new thread and the returned handle identifies it; with a
// handle the message is appended to that thread. There is no retry: the
// caller gets the handle or a *TransportError, nothing else.
func (c *Client) PostMessage(ctx context.Context, threadTS, text string, imp *Impersonation) (string, error) {
	body := postMessageRequest{
		Channel:  c.channel,
		Text:     text,
		ThreadTS: threadTS,
	}
	if imp != nil {
		body.Username = imp.Username
		body.IconURL = imp.IconURL
	}

	var result postMessageResponse
	if err := c.post(ctx, "chat.postMessage", body, &result); err != nil {
		return "", err
	}
	if result.TS == "" {
		return "", &TransportError{
			Op:     "chat.postMessage",
			URL:    c.apiURL + "/api/chat.postMessage",
			Status: http.StatusOK,
			Reason: "response carried no thread handle: " + result.Error,
		}
	}
	return result.TS, nil
}

type updateMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// EditMessage replaces the text of the thread's root message. Used only to
// refresh a thread header after the review description changes.
func (c *Client) EditMessage(ctx context.Context, threadTS, text string) error {
	body := updateMessageRequest{
		Channel: c.channel,
		Text:    text,
		TS:      threadTS,
	}
	return c.post(ctx, "chat.update", body, &struct{}{})
}

type lookupUserResponse struct {
	OK   bool `json:"ok"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Error string `json:"error"`
}

// LookupUserByEmail resolves an email to a Slack member id. A 2xx response
// without a user is a clean miss ("", nil); only transport-level failures
// produce an error.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	reqURL := fmt.Sprintf("%s/api/users.lookupByEmail?email=%s", c.apiURL, url.QueryEscape(email))

	c.logger.Debug("slack request", "op", "users.lookupByEmail", "email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", &TransportError{Op: "users.lookupByEmail", URL: reqURL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var result lookupUserResponse
	if err := c.do(req, "users.lookupByEmail", &result); err != nil {
		return "", err
	}
	return result.User.ID, nil
}

// post issues one JSON POST against the Slack Web API.
func (c *Client) post(ctx context.Context, op string, body, result any) error {
	reqURL := c.apiURL + "/api/" + op

	payload, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: op, URL: reqURL, Err: err}
	}

	c.logger.Debug("slack request", "op", op, "body", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: op, URL: reqURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, op, result)
}

// do executes the request and interprets the response uniformly: log the
// body, map non-2xx to *TransportError, decode JSON into result.
func (c *Client) do(req *http.Request, op string, result any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, URL: req.URL.String(), Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug("slack response", "op", op, "status", resp.StatusCode, "body", string(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Op:     op,
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Reason: resp.Status,
		}
	}

	if err := json.Unmarshal(data, result); err != nil {
		return &TransportError{Op: op, URL: req.URL.String(), Status: resp.StatusCode, Err: err}
	}
	return nil
}
