// Package feedsource talks to the remote post API.
package feedsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"minilink/internal/observability"
	"minilink/internal/session"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Post is a server-owned post as seen by the client.
type Post struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Source lists and creates posts.
type Source interface {
	List(ctx context.Context) ([]Post, error)
	Create(ctx context.Context, content string) (Post, error)
}

// TokenProvider supplies the bearer credential for authenticated calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// DefaultTimeout bounds a single request when none is configured.
const DefaultTimeout = 10 * time.Second

type wirePost struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Author  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w wirePost) post() Post {
	return Post{
		ID:         w.ID,
		Content:    w.Content,
		AuthorID:   w.Author.ID,
		AuthorName: w.Author.Name,
		CreatedAt:  w.CreatedAt,
	}
}

type wireError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

// Client is a Source backed by the fiber HTTP client.
type Client struct {
	baseURL string
	timeout time.Duration
	tokens  TokenProvider
	logger  *slog.Logger
}

// NewClient returns a client for the API at baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, tokens TokenProvider) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		tokens:  tokens,
		logger:  observability.Component("feedsource"),
	}
}

// List returns the server's posts, newest first.
func (c *Client) List(ctx context.Context) ([]Post, error) {
	var wire []wirePost
	if err := c.call(ctx, "list posts", fiber.MethodGet, "/api/posts", nil, true, fiber.StatusOK, &wire); err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.post())
	}
	return out, nil
}

// Create submits a new post. Blank content is rejected locally with ErrEmptyInput.
func (c *Client) Create(ctx context.Context, content string) (Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Post{}, ErrEmptyInput
	}
	var wire wirePost
	body := map[string]string{"content": content}
	if err := c.call(ctx, "create post", fiber.MethodPost, "/api/posts", body, true, fiber.StatusCreated, &wire); err != nil {
		return Post{}, err
	}
	return wire.post(), nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (session.State, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "login", "/api/auth/login", body, fiber.StatusOK)
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, name, email, password string) (session.State, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.authenticate(ctx, "register", "/api/auth/register", body, fiber.StatusCreated)
}

func (c *Client) authenticate(ctx context.Context, op, path string, body any, want int) (session.State, error) {
	var resp authResponse
	if err := c.call(ctx, op, fiber.MethodPost, path, body, false, want, &resp); err != nil {
		return session.State{}, err
	}
	return session.State{
		UserID: resp.User.ID,
		Name:   resp.User.Name,
		Email:  resp.User.Email,
		Token:  resp.Token,
	}, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body any, authed bool, want int, out any) (err error) {
	span, ctx := observability.StartSpan(ctx, "feedsource."+strings.ReplaceAll(op, " ", "_"),
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		observability.RemoteCalls.WithLabelValues(op, result).Inc()
		span.End(err)
	}()

	if err := ctx.Err(); err != nil {
		return newError(op, 0, ErrTransport, err.Error())
	}

	var agent *fiber.Agent
	switch method {
	case fiber.MethodPost:
		agent = fiber.Post(c.baseURL + path)
	default:
		agent = fiber.Get(c.baseURL + path)
	}
	agent.Timeout(c.requestTimeout(ctx))
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if authed {
		token := ""
		if c.tokens != nil {
			t, err := c.tokens.Token(ctx)
			if err != nil && !errors.Is(err, session.ErrNotSignedIn) {
				fiber.ReleaseAgent(agent)
				return &Error{Op: op, Err: fmt.Errorf("read credential: %w", err)}
			}
			token = t
		}
		if token == "" {
			fiber.ReleaseAgent(agent)
			return newError(op, 0, ErrAuthFailure, "no credential")
		}
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}

	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		c.logger.WarnContext(ctx, "post API unreachable",
			slog.String("op", op),
			slog.String("error", errs[0].Error()),
		)
		return newError(op, 0, ErrTransport, errs[0].Error())
	}
	span.AddAttributes(attribute.Int("http.status_code", status))

	switch {
	case status == fiber.StatusUnauthorized || status == fiber.StatusForbidden:
		return newError(op, status, ErrAuthFailure, errorMessage(respBody))
	case status != want:
		return newError(op, status, ErrServerFailure, errorMessage(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return newError(op, status, ErrServerFailure, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

func (c *Client) requestTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < c.timeout {
			return max(d, time.Millisecond)
		}
	}
	return c.timeout
}

func errorMessage(body []byte) string {
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error != "" {
		return we.Error
	}
	return ""
}
