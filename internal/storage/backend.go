// Package storage defines the backend contract for image object storage
// and the routing layer that decides, per image, where bytes live and how
// to address them. Metadata (image records, settings) is handled separately
// by postgres.Store.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the uniform write/read contract implemented by every storage
// destination. Put must be safe to retry: an object only counts as
// retrievable once Put returns nil.
type Backend interface {
	// Put uploads content under the given object key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Open returns a stream of the object's bytes. The caller owns the
	// returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Type returns the backend kind identifier ("local", "s3", "minio",
	// "github", "gitee").
	Type() string
}

// Kind identifies one of the five storage destinations an image can be
// written to. The set is closed; Resolve rejects anything else.
type Kind string

const (
	KindLocal  Kind = "local"
	KindS3     Kind = "s3"
	KindMinio  Kind = "minio"
	KindGitHub Kind = "github"
	KindGitee  Kind = "gitee"
)

// Kinds lists every valid backend kind.
var Kinds = []Kind{KindLocal, KindS3, KindMinio, KindGitHub, KindGitee}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindLocal, KindS3, KindMinio, KindGitHub, KindGitee:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ReadTimeout bounds a single retrieval fetch. It is deliberately longer
// than the per-attempt write deadline (see retry.WritePolicy) because
// images may be large and reads are never retried internally.
const ReadTimeout = 120 * time.Second

// Config is a resolved, point-in-time snapshot of all backend parameters.
// It is immutable once read for a given operation and re-read per request,
// so settings changes take effect without a restart. Core operations take
// a Config explicitly instead of reaching into shared state.
type Config struct {
	// ActiveKind is the backend new uploads go to when the caller does
	// not declare one.
	ActiveKind Kind

	Local  LocalConfig
	S3     S3Config
	Minio  MinioConfig
	GitHub GitHostConfig
	Gitee  GitHostConfig
}

// LocalConfig holds local filesystem parameters. A missing RootPath falls
// back to DefaultLocalRoot instead of failing resolution.
type LocalConfig struct {
	RootPath string
}

// DefaultLocalRoot is used when no storage root is configured.
const DefaultLocalRoot = "./uploads"

// S3Config holds parameters for the STS-style bucket backend. Reads go
// through presigned GET URLs; clients may upload directly using temporary
// session credentials scoped to the uploads prefix.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // optional, for S3-compatible services
}

// MinioConfig holds parameters for the static key-pair bucket backend.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// GitHostConfig holds parameters for a git-repository-as-storage backend.
type GitHostConfig struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
}
