package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
)

// Config carries the Swarm connection settings. Host doubles as the base for
// review links shown in notifications.
type Config struct {
	Host     string
	Username string
	Ticket   string
	Timeout  time.Duration
}

// Client implements ReviewStore, CommentStore, and UserStore against the
// Swarm REST API.
type Client struct {
	baseURL  string
	username string
	ticket   string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient builds a Swarm API client. The logger must not be nil.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.Host
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  base + "/api/v9",
		username: cfg.Username,
		ticket:   cfg.Ticket,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type reviewResponse struct {
	Review models.Review `json:"review"`
}

func (c *Client) GetReview(ctx context.Context, id int) (*models.Review, error) {
	var result reviewResponse
	if err := c.get(ctx, fmt.Sprintf("%s/reviews/%d", c.baseURL, id), &result); err != nil {
		return nil, fmt.Errorf("fetch review %d: %w", id, err)
	}
	return &result.Review, nil
}

type commentResponse struct {
	Comment models.Comment `json:"comment"`
}

func (c *Client) GetComment(ctx context.Context, id int) (*models.Comment, error) {
	var result commentResponse
	if err := c.get(ctx, fmt.Sprintf("%s/comments/%d", c.baseURL, id), &result); err != nil {
		return nil, fmt.Errorf("fetch comment %d: %w", id, err)
	}
	return &result.Comment, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	reqURL := fmt.Sprintf("%s/users?users=%s&fields=User,Email,FullName", c.baseURL, url.QueryEscape(id))

	var users []models.User
	if err := c.get(ctx, reqURL, &users); err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return &users[0], nil
}

func (c *Client) get(ctx context.Context, reqURL string, result any) error {
	c.logger.Debug("swarm request", "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.ticket)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("swarm API returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode swarm response: %w", err)
	}
	return nil
}
