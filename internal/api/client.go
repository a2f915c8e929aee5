package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"loom-cli/internal/chat"
	"loom-cli/internal/config"
	"loom-cli/internal/conv"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	model      string
}

var (
	_ chat.Generator = (*Client)(nil)
	_ chat.Store     = (*Client)(nil)
	_ RelayAPI       = (*Client)(nil)
)

func NewClient(cfg *config.Config) *Client {
	c := NewClientWithServer(cfg.Server)
	c.token = cfg.Token
	c.model = cfg.ModelName()
	return c
}

func NewClientWithServer(server string) *Client {
	return &Client{
		baseURL: strings.TrimRight(server, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		model: config.DefaultModel,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// --- Authentication ---

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username,omitempty"`
}

func (c *Client) Login(username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.doJSON("POST", "/v1/auth/login", LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("server returned no access token")
	}
	return &resp, nil
}

// --- Generation (streaming) ---

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Stream opens a chunked generation request and invokes onChunk for every
// text fragment, in delivery order. Fragments carry no alignment guarantee:
// a delimiter token can arrive split across any number of them.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(chunk string)) error {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	// Increase buffer for large streamed chunks
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			// Skip unparseable lines
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("generation failed: %s", chunk.Error)
		}
		if chunk.Response != "" {
			onChunk(chunk.Response)
		}
		if chunk.Done {
			break
		}
	}

	return scanner.Err()
}

// --- Conversations ---

type appendTurnRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Append commits a turn to the end of a server-side conversation.
func (c *Client) Append(ctx context.Context, conversationID string, sender conv.Sender, text string) error {
	reqBody := appendTurnRequest{Sender: string(sender), Text: text}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/turns"
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errBody))
	}
	return nil
}

// Subscribe opens the conversation watch stream (server-sent events). Every
// event carries the full turn sequence; the callback runs on the reader
// goroutine. Disposing the handle tears the connection down; a feed error
// simply ends emissions, leaving the last snapshot in place.
func (c *Client) Subscribe(conversationID string, onSnapshot func([]conv.Turn)) (chat.Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())

	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/watch"
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	// The watch connection outlives the client timeout by design.
	watchClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := watchClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening watch stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errBody))
	}

	go func() {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var turns []conv.Turn
			if err := json.Unmarshal([]byte(payload), &turns); err != nil {
				continue
			}
			onSnapshot(turns)
		}
	}()

	return &watchHandle{cancel: cancel}, nil
}

type watchHandle struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (h *watchHandle) Dispose() {
	h.once.Do(h.cancel)
}

// --- Conversation list ---

type ConversationInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	TurnCount  int    `json:"turn_count,omitempty"`
	LastUpdate string `json:"last_update,omitempty"`
}

type ConversationListResponse struct {
	Conversations []ConversationInfo `json:"conversations,omitempty"`
}

func (c *Client) ListConversations() (*ConversationListResponse, error) {
	var resp ConversationListResponse
	if err := c.doJSON("GET", "/v1/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Generic JSON helper ---

func (c *Client) doJSON(method, path string, reqBody interface{}, result interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil && method != "GET" {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
