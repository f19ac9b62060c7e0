package codex

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/sessiond/agentbridge"
)

// buildTurnInput renders content blocks into Codex's turn/start input
// array (spec §4.4.2): text blocks pass through verbatim, image blocks
// with inline base64 data are spilled to a temp file since Codex's
// input items reference images by local path rather than embedding
// bytes, and image blocks with a URL reference pass the URL through
// directly.
func buildTurnInput(blocks []agentbridge.ContentBlock) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case agentbridge.ContentText:
			items = append(items, map[string]any{"type": "text", "text": b.Text})
		case agentbridge.ContentImage:
			item, err := buildImageInput(b)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("%w: codex turn input: unsupported content block type %q", agentbridge.ErrUnsupported, b.Type)
		}
	}
	return items, nil
}

func buildImageInput(b agentbridge.ContentBlock) (map[string]any, error) {
	switch b.Source.Kind {
	case agentbridge.ImageSourceURL:
		return map[string]any{"type": "image", "imageUrl": b.Source.URL}, nil
	case agentbridge.ImageSourceBase64:
		path, err := spillImageTempFile(b.Source.Data, b.Source.MediaType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "localImage", "path": path}, nil
	default:
		return nil, fmt.Errorf("%w: codex turn input: unknown image source kind %q", agentbridge.ErrUnsupported, b.Source.Kind)
	}
}

func spillImageTempFile(b64 string, mediaType string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: decode inline image: %w", agentbridge.ErrTempIO, err)
	}
	f, err := os.CreateTemp("", "agentbridge-codex-img-*"+extensionFor(mediaType))
	if err != nil {
		return "", fmt.Errorf("%w: create temp image file: %w", agentbridge.ErrTempIO, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("%w: write temp image file: %w", agentbridge.ErrTempIO, err)
	}
	return f.Name(), nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
