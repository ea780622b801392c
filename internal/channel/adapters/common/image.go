// Package common holds helpers shared by the platform adapters.
package common

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"
)

const maxImageBytes int64 = 8 << 20

// Image is an outbound picture resolved to bytes.
type Image struct {
	Data []byte
	Mime string
	Name string
}

// IsDataURL reports whether ref is an inline data: URL.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "data:")
}

// DecodeDataURL decodes a base64 data URL such as "data:image/png;base64,....".
// A bare base64 string without header is accepted and treated as PNG.
func DecodeDataURL(ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	mimeType := "image/png"
	encoded := ref
	if header, body, ok := strings.Cut(ref, ","); ok {
		encoded = body
		mt, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
		if mt != "" {
			mimeType = mt
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Image{}, fmt.Errorf("decode data url: %w", err)
	}
	if len(data) == 0 {
		return Image{}, errors.New("decode data url: empty image")
	}
	return Image{Data: data, Mime: mimeType, Name: "image" + extensionFor(mimeType)}, nil
}

// LoadImage resolves ref to bytes: data URLs are decoded in place, anything
// else is fetched over HTTP.
func LoadImage(ctx context.Context, client *http.Client, ref string) (Image, error) {
	if IsDataURL(ref) {
		return DecodeDataURL(ref)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(ref), nil)
	if err != nil {
		return Image{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return Image{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxImageBytes {
		return Image{}, fmt.Errorf("image too large: max %d bytes", maxImageBytes)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "image" + extensionFor(mimeType)
	}
	return Image{Data: data, Mime: mimeType, Name: name}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// SummarizeText shortens text for log lines.
func SummarizeText(text string) string {
	const limit = 120
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
