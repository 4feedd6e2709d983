// utils/hash.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

// TakeHash derives the 16-char integrity hash shown on a receipt.
// Display/verification only — not a security feature.
func TakeHash(text string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(text + fmt.Sprintf("%d", createdAt.UnixMilli())))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeTakeText NFC-normalizes and trims user-submitted take text so
// length checks and hashing see one canonical form.
func NormalizeTakeText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// TakeSlug builds the share permalink slug from author and take text.
// The hash suffix keeps collisions harmless without needing a unique index.
func TakeSlug(author, text, hash string) string {
	base := slug.Make(author + " " + truncateWords(text, 6))
	if len(hash) > 6 {
		hash = hash[:6]
	}
	return base + "-" + hash
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
