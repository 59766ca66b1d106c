package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

// Client talks to one relay.
type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// Compile-time assertions.
var (
	_ domain.MessageStore = (*Client)(nil)
	_ domain.ReceiptStore = (*Client)(nil)
	_ domain.KeyDirectory = (*Client)(nil)
)

// New returns a client for base authenticating with token.
func New(base, token string) *Client {
	return &Client{
		Base:  strings.TrimRight(base, "/"),
		Token: token,
		HTTP:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SubmitMessage persists an encrypted message and returns the relay's record.
func (c *Client) SubmitMessage(ctx context.Context, req domain.SubmitRequest) (domain.Message, error) {
	var out domain.Message
	if err := c.do(ctx, http.MethodPost, "/v1/messages", req, &out); err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

// FetchMessages returns the messages of conv, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conv domain.Conversation, page domain.Page) ([]domain.Message, error) {
	q := url.Values{}
	if conv.GroupID != "" {
		q.Set("group", conv.GroupID)
	} else {
		q.Set("peer", conv.UserID.String())
	}
	if !page.Since.IsZero() {
		q.Set("since", page.Since.UTC().Format(time.RFC3339Nano))
	}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	var out []domain.Message
	if err := c.do(ctx, http.MethodGet, "/v1/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiptRequest is the body of POST /v1/receipts.
type ReceiptRequest struct {
	MessageID domain.MessageID   `json:"message_id"`
	Kind      domain.ReceiptKind `json:"type"`
}

// SubmitReceipt records a delivered or read receipt.
func (c *Client) SubmitReceipt(ctx context.Context, id domain.MessageID, kind domain.ReceiptKind) error {
	return c.do(ctx, http.MethodPost, "/v1/receipts", ReceiptRequest{MessageID: id, Kind: kind}, nil)
}

// PublishBundle uploads our public bundle.
func (c *Client) PublishBundle(ctx context.Context, b domain.PrekeyBundle) error {
	return c.do(ctx, http.MethodPost, "/v1/keys", b, nil)
}

// FetchBundle returns a bundle of user, consuming one of their prekeys.
func (c *Client) FetchBundle(ctx context.Context, user domain.UserID) (domain.PrekeyBundle, error) {
	var out domain.PrekeyBundle
	if err := c.do(ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(user.String()), nil, &out); err != nil {
		return domain.PrekeyBundle{}, err
	}
	return out, nil
}

// GroupRequest is the body of POST /v1/groups.
type GroupRequest struct {
	Name    string          `json:"name"`
	Members []domain.UserID `json:"members"`
}

// CreateGroup creates a group; the caller becomes a member.
func (c *Client) CreateGroup(ctx context.Context, name string, members []domain.UserID) (domain.Group, error) {
	var out domain.Group
	if err := c.do(ctx, http.MethodPost, "/v1/groups", GroupRequest{Name: name, Members: members}, &out); err != nil {
		return domain.Group{}, err
	}
	return out, nil
}

// GetGroup returns a group the caller belongs to.
func (c *Client) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	var out domain.Group
	if err := c.do(ctx, http.MethodGet, "/v1/groups/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.Group{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(method, path, resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		kind = errs.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = errs.ErrUnauthorized
	case http.StatusNotFound:
		kind = errs.ErrNotFound
	case http.StatusConflict:
		kind = errs.ErrAlreadyExists
	default:
		return fmt.Errorf("relay %s %s: %s", method, path, msg)
	}
	return fmt.Errorf("relay %s %s: %w: %s", method, path, kind, msg)
}
