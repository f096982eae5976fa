package storage

import (
	"crypto/rand"
	"fmt"
	"path"
	"strings"
	"time"
)

// KeyPrefix is the cross-backend naming convention: every object lives
// under uploads/{YYYYMM}/. It is not configurable per upload.
const KeyPrefix = "uploads"

// Characters that are illegal in a path segment on at least one of the
// supported backends. Stripped identically everywhere so the same key
// scheme is valid in every backend's addressing rules.
var filenameSanitizer = strings.NewReplacer(
	"/", "", "\\", "", "?", "", "*", "", ":", "", "|", "", `"`, "", "<", "", ">", "",
)

// SanitizeFilename strips characters that cannot appear in an object key
// segment. The remaining name may be empty; the millisecond timestamp in
// front of it still keys the object.
func SanitizeFilename(name string) string {
	return filenameSanitizer.Replace(name)
}

// ObjectKey builds the backend-native address for an upload:
// uploads/{YYYYMM}/{epochMillis}-{sanitizedFilename}. The millisecond
// timestamp plus original filename make collisions negligible without a
// uniqueness check.
func ObjectKey(filename string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s",
		KeyPrefix, now.UTC().Format("200601"), now.UnixMilli(), SanitizeFilename(filename))
}

// PublicPath derives the stable external lookup key for an object.
//
// Bucket kinds get a random token path so the upload timestamp and
// original filename are not exposed: uploads/{YYYYMM}/{token}.{ext}.
// Every other kind serves through a file proxy that needs the literal
// key, so publicPath equals objectKey there.
func PublicPath(kind Kind, objectKey, filename, mimeType string, now time.Time) string {
	switch kind {
	case KindS3, KindMinio:
		ext := extensionFor(filename, mimeType)
		p := fmt.Sprintf("%s/%s/%s", KeyPrefix, now.UTC().Format("200601"), randomToken(12))
		if ext != "" {
			p += "." + ext
		}
		return p
	default:
		return objectKey
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	return string(buf)
}

// extensionFor returns the filename's extension without the dot, falling
// back to the MIME subtype when the filename carries none.
func extensionFor(filename, mimeType string) string {
	if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	// e.g. "image/png" -> "png", "image/svg+xml" -> "svg"
	sub := mimeType
	if i := strings.IndexByte(sub, '/'); i >= 0 {
		sub = sub[i+1:]
	}
	if i := strings.IndexAny(sub, "+;"); i >= 0 {
		sub = sub[:i]
	}
	return strings.ToLower(strings.TrimSpace(sub))
}
