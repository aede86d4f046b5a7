package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

const imagePrompt = `Extract the financial information from this image (receipt, invoice or transfer proof).
List the merchant, the date and time, every item with its price, and the total. Mention the currency.
If the image holds no financial information, say so. Plain text only.`

// ImageExtractTool sends a downloaded image to a vision model and returns the
// extracted text. The image file is removed afterwards whatever the outcome.
type ImageExtractTool struct {
	Model       framework.LanguageModel
	VisionModel string
	// MediaDir, when set, restricts which files may be read.
	MediaDir string
	Logger   zerolog.Logger
}

func (t *ImageExtractTool) Name() string { return "image_extract_information" }

func (t *ImageExtractTool) Description() string {
	return "Read a receipt or transfer image sent by the user and return the financial details it contains."
}

func (t *ImageExtractTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "image_path", Type: "str", Description: "Path of the downloaded image, from the message context", Required: true},
		{Name: "caption", Type: "str", Description: "Caption sent with the image"},
	}
}

func (t *ImageExtractTool) OutputSchema() string { return "str (extracted details)" }

func (t *ImageExtractTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := requireString(t.Name(), args, "image_path")
	if err != nil {
		return "", err
	}
	path = filepath.Clean(path)
	if t.MediaDir != "" {
		rel, err := filepath.Rel(filepath.Clean(t.MediaDir), path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", framework.InvalidArgs(t.Name(), "Image path %q is outside the media directory", path)
		}
	}
	data, err := os.ReadFile(path) //#nosec G304 -- restricted to MediaDir above
	if err != nil {
		if os.IsNotExist(err) {
			return "", framework.NotFound(t.Name(), "Image %q not found", path)
		}
		return "", fmt.Errorf("image_extract_information: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.Logger.Warn().Err(err).Str("path", path).Msg("failed to remove processed image")
		}
	}()

	uri, err := DataURI(data)
	if err != nil {
		return "", framework.InvalidArgs(t.Name(), "%s", err.Error())
	}
	prompt := imagePrompt
	if caption, ok := stringArg(args, "caption"); ok && caption != "" {
		prompt += "\nCaption from the user: " + caption
	}
	resp, err := t.Model.Chat(ctx, []framework.Message{
		{Role: framework.RoleUser, Content: prompt, ImageURL: uri},
	}, &framework.LLMOptions{Model: t.VisionModel, Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("image_extract_information: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("image_extract_information: %w: empty response", framework.ErrLLMProvider)
	}
	return strings.TrimSpace(resp.Text), nil
}

// DataURI validates data as a supported image and encodes it as a base64
// data URI.
func DataURI(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unsupported image: %v", err)
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(data)), nil
}
