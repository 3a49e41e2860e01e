// Package fileid derives stable movie ids from import file paths.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// MovieID returns the UUIDv5 of the cleaned absolute path in the URL namespace.
// The same path always yields the same id, so re-importing a file updates its record.
func MovieID(absolutePath string) string {
	normalized := filepath.ToSlash(filepath.Clean(absolutePath))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+normalized)).String()
}
