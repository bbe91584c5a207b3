package usecase

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewStorageKey derives a unique, URL-safe object key from an upload's
// original file name.
func NewStorageKey(originalName string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	base := strings.TrimSuffix(sanitizeFilename(originalName), filepath.Ext(sanitizeFilename(originalName)))
	base = strings.Trim(strings.ToLower(base), "-_.")
	if base == "" {
		base = "document"
	}
	if len(base) > 60 {
		base = base[:60]
	}
	return fmt.Sprintf("%s-%d-%s%s", base, now.UnixMilli(), uuid.NewString()[:8], sanitizeExt(ext))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "-")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." {
		return "document"
	}
	return base
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	clean := sanitizeFilename(ext)
	if !strings.HasPrefix(clean, ".") || len(clean) < 2 || len(clean) > 10 {
		return ""
	}
	return clean
}
