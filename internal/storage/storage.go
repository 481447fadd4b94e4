// Package storage keeps product images in object storage.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ObjectStorage uploads, removes and addresses stored objects.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// PublicURL returns the address clients can fetch key from, or nil
	// when key is empty.
	PublicURL(key string) *string
}

// publicURL joins base and key. Without a base the virtual S3 website
// address of bucket is used.
func publicURL(base, region, bucket, key string) *string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return nil
	}

	escaped := escapeKey(key)
	var u string
	if base != "" {
		u = strings.TrimRight(base, "/") + "/" + escaped
	} else {
		u = fmt.Sprintf("https://s3-%s.amazonaws.com/%s/%s", region, bucket, escaped)
	}
	return &u
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
