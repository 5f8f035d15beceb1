package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Telegram implements Transport over the Telegram Bot API.
type Telegram struct {
	botToken string
	apiBase  string
	client   *http.Client
}

// NewTelegram creates a Telegram transport.
// botToken: Bot API token from @BotFather.
func NewTelegram(botToken string) *Telegram {
	return &Telegram{
		botToken: botToken,
		apiBase:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (t *Telegram) api(method string) string {
	return t.apiBase + "/bot" + t.botToken + "/" + method
}

func (t *Telegram) Send(ctx context.Context, recipientID, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    recipientID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	return t.post(ctx, "sendMessage", recipientID, body)
}

func (t *Telegram) Probe(ctx context.Context, recipientID string) error {
	// sendChatAction is invisible to the recipient but still returns 403
	// for blocked/deactivated chats.
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id": recipientID,
		"action":  "typing",
	})
	return t.post(ctx, "sendChatAction", recipientID, body)
}

func (t *Telegram) post(ctx context.Context, method, recipientID string, body []byte) error {
	return t.postResult(ctx, method, recipientID, body, nil)
}

// postResult posts a Bot API call and, when out is non-nil, decodes the
// response's result field into it.
func (t *Telegram) postResult(ctx context.Context, method, recipientID string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", t.api(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		var payload struct {
			OK     bool            `json:"ok"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("telegram: decode %s response: %w", method, err)
		}
		if !payload.OK {
			return fmt.Errorf("telegram: %s returned ok=false", method)
		}
		return json.Unmarshal(payload.Result, out)
	case resp.StatusCode == http.StatusForbidden:
		// The bot was blocked or the account is gone.
		return fmt.Errorf("telegram: %s to %s: %w", method, recipientID, ErrRecipientGone)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: %s to %s: status %d: %s", method, recipientID, resp.StatusCode, msg)
	}
}

// Pin sends text and pins the resulting message in the recipient's chat.
// The pin itself is silent; the message delivery already notified them.
func (t *Telegram) Pin(ctx context.Context, recipientID, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    recipientID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := t.postResult(ctx, "sendMessage", recipientID, body, &sent); err != nil {
		return err
	}

	pin, _ := json.Marshal(map[string]interface{}{
		"chat_id":              recipientID,
		"message_id":           sent.MessageID,
		"disable_notification": true,
	})
	return t.post(ctx, "pinChatMessage", recipientID, pin)
}

// update mirrors the subset of the getUpdates payload we consume.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Text string `json:"text"`
	} `json:"message"`
}

func (t *Telegram) Receive(ctx context.Context, offset int64) ([]Inbound, int64, error) {
	q := url.Values{}
	q.Set("timeout", "10")
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.api("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, fmt.Errorf("telegram: create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, offset, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, offset, fmt.Errorf("telegram: decode updates: %w", err)
	}
	if !payload.OK {
		return nil, offset, fmt.Errorf("telegram: getUpdates returned ok=false")
	}

	next := offset
	var inbound []Inbound
	for _, u := range payload.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.From == nil {
			continue
		}
		inbound = append(inbound, Inbound{
			UpdateID: u.UpdateID,
			SenderID: strconv.FormatInt(u.Message.From.ID, 10),
			Username: u.Message.From.Username,
			Text:     u.Message.Text,
		})
	}
	return inbound, next, nil
}

func (t *Telegram) SetCommands(ctx context.Context) error {
	body, _ := json.Marshal(map[string]interface{}{
		"commands": []map[string]string{
			{"command": "settings", "description": "Show current notification preferences"},
			{"command": "settimeframes", "description": "Set enabled granularities (e.g. 1h,1d)"},
			{"command": "setsignals", "description": "Set enabled signal kinds"},
			{"command": "unsubscribe", "description": "Stop receiving alerts"},
			{"command": "adduser", "description": "Admin: manually add a recipient"},
			{"command": "removeuser", "description": "Admin: manually remove a recipient"},
			{"command": "listusers", "description": "Admin: list subscribers"},
			{"command": "cleanup", "description": "Admin: remove unreachable subscribers"},
			{"command": "broadcast", "description": "Admin: message all subscribers"},
			{"command": "pin", "description": "Admin: broadcast and pin an announcement"},
		},
	})
	if err := t.post(ctx, "setMyCommands", "", body); err != nil {
		return err
	}
	log.Printf("[telegram] bot commands registered")
	return nil
}
