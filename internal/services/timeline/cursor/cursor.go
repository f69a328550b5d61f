// Package cursor provides opaque feed pagination token encoding/decoding.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Cursor represents the internal state of a feed pagination cursor. It marks
// the position of the last entry the previous page returned; the next page
// resumes strictly after it in (created_at DESC, id DESC) order.
type Cursor struct {
	// CreatedAtMillis is the creation timestamp of the last returned entry.
	CreatedAtMillis int64 `json:"ts"`
	// MessageID breaks ties between entries sharing a timestamp.
	MessageID int64 `json:"id"`
	// ViewerHash ensures tokens are invalidated if replayed by another viewer.
	ViewerHash string `json:"viewer_hash,omitempty"`
}

// Encode encodes a cursor to an opaque base64 string.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque base64 string to a cursor.
// Returns an error if the token is invalid or malformed.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}

	if c.CreatedAtMillis <= 0 {
		return Cursor{}, fmt.Errorf("invalid cursor timestamp: %d", c.CreatedAtMillis)
	}
	if c.MessageID <= 0 {
		return Cursor{}, fmt.Errorf("invalid cursor message id: %d", c.MessageID)
	}

	return c, nil
}

// HashViewer computes a short hash of the viewer ID for cursor validation.
func HashViewer(viewerID int64) string {
	h := sha256.Sum256([]byte(strconv.FormatInt(viewerID, 10)))
	return hex.EncodeToString(h[:8]) // 64-bit hash is sufficient for validation
}

// ValidateViewerHash checks if the cursor's viewer hash matches the current
// viewer. Returns an error when a token is replayed against a different feed.
func ValidateViewerHash(c Cursor, viewerID int64) error {
	if c.ViewerHash != HashViewer(viewerID) {
		return fmt.Errorf("cursor was issued for a different viewer")
	}
	return nil
}

// New creates a cursor marking the last entry of a returned page.
func New(createdAtMillis int64, messageID int64, viewerID int64) Cursor {
	return Cursor{
		CreatedAtMillis: createdAtMillis,
		MessageID:       messageID,
		ViewerHash:      HashViewer(viewerID),
	}
}
