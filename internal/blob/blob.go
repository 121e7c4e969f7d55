package blob

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for file paths outside the chat image namespace.
var ErrInvalidKey = errors.New("blob: invalid file path")

const keyPrefix = "chat-images/"

// Object is what a client stores in a message: the durable key and a
// short-lived URL to display it.
type Object struct {
	FilePath  string `json:"filePath"`
	SignedURL string `json:"signedUrl"`
}

// Store uploads chat attachments and signs download URLs for them.
type Store interface {
	Upload(ctx context.Context, ticketID, filename, contentType string, body io.Reader, size int64) (*Object, error)
	SignedURL(ctx context.Context, filePath string) (string, error)
}

// Key builds chat-images/{ticketId}/{uuid}.{ext}.
func Key(ticketID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return keyPrefix + ticketID + "/" + uuid.NewString() + ext
}

// ValidKey reports whether filePath looks like a key produced by Key.
func ValidKey(filePath string) bool {
	if !strings.HasPrefix(filePath, keyPrefix) || strings.Contains(filePath, "..") {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(filePath, keyPrefix), "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
