package service

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"clipfeed/internal/model"
)

// feedCursor is the state of one for-you traversal, handed to the client as an
// opaque nextCursor. It pins the recency window and the popular order for the whole
// traversal and records how far each source has been read.
type feedCursor struct {
	Since     time.Time                `json:"since"`
	Seed      string                   `json:"seed"`
	Positions [4]*model.SourcePosition `json:"pos"`
}

func (c feedCursor) encode() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode feed cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeFeedCursor(token string) (feedCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return feedCursor{}, model.ErrInvalidCursor
	}
	var c feedCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return feedCursor{}, model.ErrInvalidCursor
	}
	if c.Seed == "" || c.Since.IsZero() {
		return feedCursor{}, model.ErrInvalidCursor
	}
	return c, nil
}
