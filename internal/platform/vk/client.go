package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Client calls the VK API.
type Client struct {
	baseURL    string
	token      string
	version    string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client from the VK configuration section.
func NewClient(cfg config.VKConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		token:    cfg.AccessToken,
		version:  cfg.APIVersion,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.With(slog.String("component", "vk_client")),
	}
}

// RawComment is a comment as wall.getComments returns it.
type RawComment struct {
	ID      int64  `json:"id"`
	FromID  int64  `json:"from_id"`
	PostID  int64  `json:"post_id"`
	OwnerID int64  `json:"owner_id"`
	Date    int64  `json:"date"`
	Text    string `json:"text"`
	Likes   struct {
		Count int `json:"count"`
	} `json:"likes"`
	Thread struct {
		Count int `json:"count"`
	} `json:"thread"`
}

// CreatedAt converts the unix timestamp VK reports.
func (c RawComment) CreatedAt() time.Time {
	return time.Unix(c.Date, 0).UTC()
}

// CommentsPage is one page of comments. An empty NextCursor means the post
// has no more comments.
type CommentsPage struct {
	Comments   []RawComment
	NextCursor string
	Total      int
}

// Post is a wall post as wall.get returns it.
type Post struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	Date     int64  `json:"date"`
	Text     string `json:"text"`
	Comments struct {
		Count int `json:"count"`
	} `json:"comments"`
}

type itemsResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

// ParseCursor converts a pagination cursor into a wall.getComments offset.
// An empty cursor is the first page.
func ParseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: invalid cursor %q", domain.ErrValidation, cursor)
	}
	return offset, nil
}

// FetchCommentsPage fetches the page of comments of a post starting at cursor.
func (c *Client) FetchCommentsPage(ctx context.Context, ownerID, postID int64, cursor string) (*CommentsPage, error) {
	offset, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("post_id", strconv.FormatInt(postID, 10))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("count", strconv.Itoa(c.pageSize))
	params.Set("sort", "asc")
	params.Set("need_likes", "1")

	var resp itemsResponse[RawComment]
	if err := c.call(ctx, "wall.getComments", params, &resp); err != nil {
		return nil, err
	}

	page := &CommentsPage{Comments: resp.Items, Total: resp.Count}
	next := offset + len(resp.Items)
	if len(resp.Items) > 0 && next < resp.Count {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// FetchPosts returns up to count of the most recent posts on a wall.
func (c *Client) FetchPosts(ctx context.Context, ownerID int64, count int) ([]Post, error) {
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("filter", "owner")

	var resp itemsResponse[Post]
	if err := c.call(ctx, "wall.get", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// call waits for the rate limiter, performs the request and decodes the
// response envelope into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("vk %s: waiting for rate limiter: %w", method, ctxErr)
		}
		// The deadline is closer than the next free slot.
		return fmt.Errorf("vk %s: %w: %v", method, context.DeadlineExceeded, err)
	}

	params.Set("v", c.version)
	if c.token != "" {
		params.Set("access_token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("vk %s: create request: %w", method, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("vk %s: %w", method, ctxErr)
		}
		// url.Error carries the request URL, access token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return &UpstreamError{Method: method, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("vk request completed",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{
			Method:      method,
			HTTPStatus:  resp.StatusCode,
			Message:     http.StatusText(resp.StatusCode),
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("vk %s: %w", method, ctxErr)
		}
		return &UpstreamError{Method: method, Message: "reading response: " + err.Error()}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &UpstreamError{Method: method, Message: "malformed response"}
	}
	if env.Error != nil {
		rateLimited := isRateLimitCode(env.Error.Code)
		if rateLimited {
			c.logger.Warn("vk rate limit hit",
				slog.String("method", method),
				slog.Int("code", env.Error.Code))
		}
		return &UpstreamError{
			Method:      method,
			Code:        env.Error.Code,
			Message:     env.Error.Message,
			RateLimited: rateLimited,
		}
	}
	if len(env.Response) == 0 {
		return &UpstreamError{Method: method, Message: "empty response"}
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return &UpstreamError{Method: method, Message: "unexpected response shape"}
	}
	return nil
}
