// Package telegram is a hand-rolled Bot API client covering the handful of
// methods the bot consumes: messaging, group membership, invite links, and
// getUpdates long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a Telegram Bot API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		// Long polling asks Telegram to hold the request open; the
		// transport timeout has to outlast the poll timeout.
		httpClient: &http.Client{Timeout: 65 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call posts params as JSON to a Bot API method and decodes the result into
// out (which may be nil). API-level failures (ok:false) come back as errors
// carrying the description.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.methodURL(method), body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(method, resp.Body, out)
}

func decodeResponse(method string, r io.Reader, out any) error {
	var ar apiResponse
	if err := json.NewDecoder(r).Decode(&ar); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !ar.OK {
		return fmt.Errorf("telegram %s: %s (code %d)", method, ar.Description, ar.ErrorCode)
	}
	if out != nil && ar.Result != nil {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// GetUpdates long-polls for updates after the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends a Markdown text message, optionally with an inline
// keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *InlineKeyboardMarkup) (*Message, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if kb != nil {
		params["reply_markup"] = kb
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendPhoto uploads a photo with a Markdown caption. Used for PIX QR codes.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, kb *InlineKeyboardMarkup) (*Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return nil, fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		mw.WriteField("caption", caption)
		mw.WriteField("parse_mode", "Markdown")
	}
	if kb != nil {
		b, err := json.Marshal(kb)
		if err != nil {
			return nil, fmt.Errorf("marshal reply markup: %w", err)
		}
		mw.WriteField("reply_markup", string(b))
	}
	fw, err := mw.CreateFormFile("photo", "qrcode.png")
	if err != nil {
		return nil, fmt.Errorf("create photo field: %w", err)
	}
	if _, err := fw.Write(photo); err != nil {
		return nil, fmt.Errorf("write photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.methodURL("sendPhoto"), &buf)
	if err != nil {
		return nil, fmt.Errorf("create sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call sendPhoto: %w", err)
	}
	defer resp.Body.Close()

	var msg Message
	if err := decodeResponse("sendPhoto", resp.Body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text (and keyboard) of an existing message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, kb *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if kb != nil {
		params["reply_markup"] = kb
	}
	return c.call(ctx, "editMessageText", params, nil)
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallbackQuery acknowledges a button press so the client stops its
// loading spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	}, nil)
}

// AddChatMember attempts to place a user directly into the group. Telegram
// rejects this for most group configurations, in which case the caller falls
// back to an invite link.
func (c *Client) AddChatMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "addChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// BanChatMember removes a user from the group.
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// UnbanChatMember lifts a previous ban so a returning subscriber can use a
// fresh invite link.
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}, nil)
}

// CreateChatInviteLink creates an invite link limited to memberLimit uses
// that expires at expireAt.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int, expireAt time.Time) (*ChatInviteLink, error) {
	var link ChatInviteLink
	err := c.call(ctx, "createChatInviteLink", map[string]any{
		"chat_id":      chatID,
		"member_limit": memberLimit,
		"expire_date":  expireAt.Unix(),
	}, &link)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// RevokeChatInviteLink invalidates a previously created invite link.
func (c *Client) RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error {
	return c.call(ctx, "revokeChatInviteLink", map[string]any{
		"chat_id":     chatID,
		"invite_link": inviteLink,
	}, nil)
}
