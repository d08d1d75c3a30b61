package session

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

// DefaultMaxAttachmentBytes caps attachments at 5 MiB
const DefaultMaxAttachmentBytes int64 = 5 << 20

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Attachment is a multimodal payload queued for the next gateway call
type Attachment struct {
	MediaType string
	Data      []byte
	Path      string
}

// LoadAttachment reads an image from path. The media type is sniffed from
// the content, not the extension.
func LoadAttachment(path string, maxBytes int64) (*Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("attachment %s exceeds %d bytes", path, maxBytes)
	}

	mediaType := http.DetectContentType(data)
	if !imageTypes[mediaType] {
		return nil, fmt.Errorf("unsupported attachment type %s: only png, jpeg, gif and webp images are accepted", mediaType)
	}

	return &Attachment{MediaType: mediaType, Data: data, Path: path}, nil
}

// Describe renders the attachment for operator output
func (a *Attachment) Describe() string {
	return fmt.Sprintf("%s (%s, %d bytes)", a.Path, a.MediaType, len(a.Data))
}
