package avatars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxAvatarBytes caps how much of a provider-hosted avatar is mirrored.
const maxAvatarBytes = 5 << 20

// Store persists avatar objects in a bucket.
type Store interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Mirror copies provider-hosted avatar images into our own object store
// so profiles keep working after the provider URL rots.
type Mirror struct {
	store      Store
	httpClient *http.Client
}

// NewMirror constructs a Mirror over the given store.
func NewMirror(store Store) *Mirror {
	return &Mirror{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch downloads the avatar at url and stores it under a per-user key.
// The stored key is returned.
func (m *Mirror) Fetch(ctx context.Context, userID int64, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("avatar url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build avatar request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch avatar: status=%d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("users/%d/avatar", userID)
	body := io.LimitReader(resp.Body, maxAvatarBytes)
	if err := m.store.Put(ctx, key, body, -1, contentType); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return key, nil
}
