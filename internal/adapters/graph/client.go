// Package graph implements the mail API ports against the Microsoft Graph
// REST endpoints. Authentication is an opaque bearer token supplied by the
// caller; token acquisition and refresh live outside this service.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

const messageSelectFields = "id,subject,body,from,receivedDateTime,isRead"

// Client fetches and moves messages through the Microsoft Graph API
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClient creates a new Graph mail client
func NewClient(
	baseURL string,
	accessToken string,
	timeout time.Duration,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		accessToken:   accessToken,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// graphMessage mirrors the subset of the Graph message resource we select
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
	IsRead           bool   `json:"isRead"`
}

// FetchMessage retrieves one message's content by id
func (c *Client) FetchMessage(ctx context.Context, id string) (*core.Message, error) {
	endpoint := fmt.Sprintf("%s/me/messages/%s?$select=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(messageSelectFields))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch message %s: unexpected status %d: %s", id, resp.StatusCode, body)
	}

	var msg graphMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}

	receivedAt, err := time.Parse(time.RFC3339, msg.ReceivedDateTime)
	if err != nil {
		c.logger.Debug("Unparseable receivedDateTime",
			zap.String("message_id", id),
			zap.String("value", msg.ReceivedDateTime))
		receivedAt = time.Time{}
	}

	return &core.Message{
		ID:         msg.ID,
		From:       msg.From.EmailAddress.Address,
		Subject:    msg.Subject,
		BodyText:   c.textProcessor.ProcessBody(msg.Body.Content, c.maxBodySize),
		ReceivedAt: receivedAt,
		IsRead:     msg.IsRead,
	}, nil
}

// MoveMessage moves a message to the destination folder. Graph answers 200
// or 201 with the moved message resource on success.
func (c *Client) MoveMessage(ctx context.Context, id string, destinationFolderID string) error {
	payload, err := json.Marshal(map[string]string{"destinationId": destinationFolderID})
	if err != nil {
		return fmt.Errorf("failed to marshal move payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages/%s/move", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build move request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to move message %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("move message %s: unexpected status %d: %s", id, resp.StatusCode, body)
	}

	return nil
}
