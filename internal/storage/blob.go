package storage

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
	Delete(key string) error
}

// EvidenceKey names an uploaded evidence file. The uuid prefix keeps repeated
// uploads of the same filename apart.
func EvidenceKey(auditID, itemID, filename string) string {
	return path.Join("audits", auditID, "items", itemID, fmt.Sprintf("%s-%s", uuid.NewString(), cleanName(filename)))
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}
