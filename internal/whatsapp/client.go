package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// DefaultBaseURL is the Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

const maxMediaBytes = 16 << 20

// Client sends replies and fetches media through the WhatsApp Cloud API.
type Client struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	HTTP          *http.Client
	Logger        zerolog.Logger
}

// NewClient validates credentials. Token and phone number id are required.
func NewClient(baseURL, token, phoneNumberID string, logger zerolog.Logger) (*Client, error) {
	if token == "" || phoneNumberID == "" {
		return nil, fmt.Errorf("%w: WhatsApp token and phone number id are required", framework.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Token:         token,
		PhoneNumberID: phoneNumberID,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
		Logger:        logger.With().Str("component", "whatsapp").Logger(),
	}, nil
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendText delivers body to the phone number to.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()          //nolint:errcheck // No remedy for close errors
	_, _ = io.Copy(io.Discard, resp.Body) // drain for connection reuse
	return nil
}

// DownloadMedia resolves mediaID and stores the file in dir, returning its
// path. The caller owns the file.
func (c *Client) DownloadMedia(ctx context.Context, mediaID, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.BaseURL, mediaID), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	meta, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close() //nolint:errcheck // read above
	if err != nil {
		return "", err
	}
	mediaURL := gjson.GetBytes(meta, "url").String()
	if mediaURL == "" {
		return "", fmt.Errorf("resolve media %s: response has no url", mediaID)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	resp, err = c.do(req)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", mediaID, err)
	}
	defer resp.Body.Close() //nolint:errcheck // No remedy for close errors

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(mediaID)+extensionFor(gjson.GetBytes(meta, "mime_type").String()))
	f, err := os.Create(path) //#nosec G304 -- name derived from the media id
	if err != nil {
		return "", err
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxMediaBytes+1))
	closeErr := f.Close()
	if copyErr == nil && n > maxMediaBytes {
		copyErr = fmt.Errorf("media %s exceeds %d bytes", mediaID, maxMediaBytes)
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return "", copyErr
		}
		return "", closeErr
	}
	c.Logger.Debug().Str("media_id", mediaID).Str("path", path).Int64("bytes", n).Msg("media downloaded")
	return path, nil
}

// do adds auth and turns non-2xx answers into errors. On error the body is
// already closed.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("whatsapp api: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
