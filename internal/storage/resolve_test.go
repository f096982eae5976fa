package storage

import (
	"context"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"local", "s3", "minio", "github", "gitee"} {
		if _, ok := ParseKind(s); !ok {
			t.Errorf("ParseKind(%q) should succeed", s)
		}
	}
	for _, s := range []string{"", "ftp", "S3", "dropbox"} {
		if _, ok := ParseKind(s); ok {
			t.Errorf("ParseKind(%q) should fail", s)
		}
	}
}

func TestResolveLocalDefaultsRoot(t *testing.T) {
	dir := t.TempDir()
	b, err := Resolve(context.Background(), Config{Local: LocalConfig{RootPath: dir}}, KindLocal)
	if err != nil {
		t.Fatalf("resolve local: %v", err)
	}
	if b.Type() != "local" {
		t.Errorf("type = %q, want local", b.Type())
	}
}

func TestResolveMissingBucketConfig(t *testing.T) {
	cfg := Config{
		S3: S3Config{Region: "us-east-1", AccessKey: "k", SecretKey: "s"}, // no bucket
	}
	_, err := Resolve(context.Background(), cfg, KindS3)
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if cerr.Kind != KindS3 || cerr.Param != "bucket" {
		t.Errorf("ConfigError = %+v, want kind s3 param bucket", cerr)
	}
}

func TestResolveMissingGitToken(t *testing.T) {
	cfg := Config{
		GitHub: GitHostConfig{Owner: "acme", Repo: "images"},
	}
	_, err := Resolve(context.Background(), cfg, KindGitHub)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cerr.Param != "accessToken" {
		t.Errorf("missing param = %q, want accessToken", cerr.Param)
	}
}

func TestResolveMinioRequiresEndpoint(t *testing.T) {
	cfg := Config{
		Minio: MinioConfig{Bucket: "b", AccessKey: "k", SecretKey: "s"},
	}
	_, err := Resolve(context.Background(), cfg, KindMinio)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cerr.Param != "endpoint" {
		t.Errorf("missing param = %q, want endpoint", cerr.Param)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	if _, err := Resolve(context.Background(), Config{}, Kind("ftp")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
