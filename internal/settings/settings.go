// Package settings stores runtime-changeable configuration in the
// database with a layered fallback per key: stored value, then process
// environment variable, then a built-in default. Storage settings can
// therefore be changed through the API without a restart, while fresh
// deployments can still be driven entirely from the environment.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/storage"
)

// definition describes one known setting key.
type definition struct {
	Key      string
	Env      string
	Default  string
	Category string
}

var definitions = []definition{
	{"storageType", "STORAGE_TYPE", "local", "storage"},
	{"localStoragePath", "LOCAL_STORAGE_PATH", "", "storage"},

	{"s3Region", "S3_REGION", "us-east-1", "storage"},
	{"s3Bucket", "S3_BUCKET", "", "storage"},
	{"s3AccessKey", "S3_ACCESS_KEY", "", "storage"},
	{"s3SecretKey", "S3_SECRET_KEY", "", "storage"},
	{"s3Endpoint", "S3_ENDPOINT", "", "storage"},

	{"minioEndpoint", "MINIO_ENDPOINT", "", "storage"},
	{"minioBucket", "MINIO_BUCKET", "", "storage"},
	{"minioAccessKey", "MINIO_ACCESS_KEY", "", "storage"},
	{"minioSecretKey", "MINIO_SECRET_KEY", "", "storage"},
	{"minioRegion", "MINIO_REGION", "", "storage"},
	{"minioUseSSL", "MINIO_USE_SSL", "true", "storage"},

	{"githubAccessToken", "GITHUB_ACCESS_TOKEN", "", "storage"},
	{"githubOwner", "GITHUB_OWNER", "", "storage"},
	{"githubRepo", "GITHUB_REPO", "", "storage"},
	{"githubBranch", "GITHUB_BRANCH", "main", "storage"},

	{"giteeAccessToken", "GITEE_ACCESS_TOKEN", "", "storage"},
	{"giteeOwner", "GITEE_OWNER", "", "storage"},
	{"giteeRepo", "GITEE_REPO", "", "storage"},
	{"giteeBranch", "GITEE_BRANCH", "master", "storage"},
}

var byKey = func() map[string]definition {
	m := make(map[string]definition, len(definitions))
	for _, d := range definitions {
		m[d.Key] = d
	}
	return m
}()

// Store reads and writes the settings table.
type Store struct {
	db *sql.DB
}

// New creates a settings store on an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Known reports whether key is a recognized setting.
func Known(key string) bool {
	_, ok := byKey[key]
	return ok
}

// All returns every stored key/value pair.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("settings_all", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts one setting.
func (s *Store) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("settings_set", time.Since(start)) }()

	category := "general"
	if d, ok := byKey[key]; ok {
		category = d.Category
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, category, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = $2, category = $3, updated_at = NOW()`,
		key, value, category)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// Seed inserts environment-derived values for keys that have no stored
// row yet. Existing rows are preserved so values configured through the
// API survive redeploys.
func (s *Store) Seed(ctx context.Context) error {
	for _, d := range definitions {
		value := os.Getenv(d.Env)
		if value == "" {
			value = d.Default
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value, category)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO NOTHING`,
			d.Key, value, d.Category)
		if err != nil {
			return fmt.Errorf("seed setting %s: %w", d.Key, err)
		}
	}
	return nil
}

// resolve applies the layered fallback for one key.
func resolve(stored map[string]string, key string) string {
	d := byKey[key]
	if v := stored[key]; v != "" {
		return v
	}
	if v := os.Getenv(d.Env); v != "" {
		return v
	}
	return d.Default
}

// Snapshot assembles a point-in-time storage configuration. Every core
// operation should take one fresh snapshot and carry it, never re-read
// mid-operation.
func (s *Store) Snapshot(ctx context.Context) (storage.Config, error) {
	stored, err := s.All(ctx)
	if err != nil {
		return storage.Config{}, err
	}

	kind, ok := storage.ParseKind(resolve(stored, "storageType"))
	if !ok {
		kind = storage.KindLocal
	}

	useSSL, err := strconv.ParseBool(resolve(stored, "minioUseSSL"))
	if err != nil {
		useSSL = true
	}

	return storage.Config{
		ActiveKind: kind,
		Local: storage.LocalConfig{
			RootPath: resolve(stored, "localStoragePath"),
		},
		S3: storage.S3Config{
			Region:    resolve(stored, "s3Region"),
			Bucket:    resolve(stored, "s3Bucket"),
			AccessKey: resolve(stored, "s3AccessKey"),
			SecretKey: resolve(stored, "s3SecretKey"),
			Endpoint:  resolve(stored, "s3Endpoint"),
		},
		Minio: storage.MinioConfig{
			Endpoint:  resolve(stored, "minioEndpoint"),
			Bucket:    resolve(stored, "minioBucket"),
			AccessKey: resolve(stored, "minioAccessKey"),
			SecretKey: resolve(stored, "minioSecretKey"),
			Region:    resolve(stored, "minioRegion"),
			UseSSL:    useSSL,
		},
		GitHub: storage.GitHostConfig{
			Token:  resolve(stored, "githubAccessToken"),
			Owner:  resolve(stored, "githubOwner"),
			Repo:   resolve(stored, "githubRepo"),
			Branch: resolve(stored, "githubBranch"),
		},
		Gitee: storage.GitHostConfig{
			Token:  resolve(stored, "giteeAccessToken"),
			Owner:  resolve(stored, "giteeOwner"),
			Repo:   resolve(stored, "giteeRepo"),
			Branch: resolve(stored, "giteeBranch"),
		},
	}, nil
}
