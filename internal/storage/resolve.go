package storage

import (
	"context"
	"fmt"

	"github.com/yuhuotech/pixelhub/internal/storage/githost"
	"github.com/yuhuotech/pixelhub/internal/storage/local"
	miniostore "github.com/yuhuotech/pixelhub/internal/storage/minio"
	s3store "github.com/yuhuotech/pixelhub/internal/storage/s3"
)

// ParseKind maps a caller-supplied string onto the closed kind set.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

// Resolve validates the parameter bundle for the requested backend kind
// and constructs its adapter. It is a pure read-and-validate step with no
// transport side effects, and it runs before any bytes move so a
// misconfigured backend can never receive a partial upload.
//
// The local kind has a relaxed contract: a missing storage root falls back
// to DefaultLocalRoot instead of failing.
func Resolve(ctx context.Context, cfg Config, kind Kind) (Backend, error) {
	switch kind {
	case KindLocal:
		root := cfg.Local.RootPath
		if root == "" {
			root = DefaultLocalRoot
		}
		return local.New(local.Config{RootPath: root})

	case KindS3:
		if err := requireParams(kind, map[string]string{
			"accessKey": cfg.S3.AccessKey,
			"secretKey": cfg.S3.SecretKey,
			"bucket":    cfg.S3.Bucket,
			"region":    cfg.S3.Region,
		}); err != nil {
			return nil, err
		}
		return s3store.New(ctx, s3store.Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
		})

	case KindMinio:
		if err := requireParams(kind, map[string]string{
			"endpoint":  cfg.Minio.Endpoint,
			"accessKey": cfg.Minio.AccessKey,
			"secretKey": cfg.Minio.SecretKey,
			"bucket":    cfg.Minio.Bucket,
		}); err != nil {
			return nil, err
		}
		return miniostore.New(miniostore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			Bucket:    cfg.Minio.Bucket,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Region:    cfg.Minio.Region,
			UseSSL:    cfg.Minio.UseSSL,
		})

	case KindGitHub:
		if err := requireParams(kind, map[string]string{
			"accessToken": cfg.GitHub.Token,
			"owner":       cfg.GitHub.Owner,
			"repo":        cfg.GitHub.Repo,
		}); err != nil {
			return nil, err
		}
		return githost.NewGitHub(githost.Config{
			Token:  cfg.GitHub.Token,
			Owner:  cfg.GitHub.Owner,
			Repo:   cfg.GitHub.Repo,
			Branch: cfg.GitHub.Branch,
		}), nil

	case KindGitee:
		if err := requireParams(kind, map[string]string{
			"accessToken": cfg.Gitee.Token,
			"owner":       cfg.Gitee.Owner,
			"repo":        cfg.Gitee.Repo,
		}); err != nil {
			return nil, err
		}
		return githost.NewGitee(githost.Config{
			Token:  cfg.Gitee.Token,
			Owner:  cfg.Gitee.Owner,
			Repo:   cfg.Gitee.Repo,
			Branch: cfg.Gitee.Branch,
		}), nil

	default:
		return nil, fmt.Errorf("unknown backend kind: %q", kind)
	}
}

// requireParams returns a ConfigError naming the first missing parameter.
// Parameters are checked in a stable order so error messages are
// deterministic.
func requireParams(kind Kind, params map[string]string) error {
	order := []string{"endpoint", "accessKey", "secretKey", "accessToken", "owner", "repo", "bucket", "region"}
	for _, name := range order {
		if v, ok := params[name]; ok && v == "" {
			return &ConfigError{Kind: kind, Param: name}
		}
	}
	return nil
}
