// Package backup ships encrypted snapshots of the SQLite ledger to
// S3-compatible storage and restores them.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

// s3Client is the subset of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether enough is configured to reach a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3         S3Config
	Prefix     string
	Passphrase string
}

var ErrNotConfigured = errors.New("backup not configured: S3 bucket or credentials missing")

const timeLayout = "2006-01-02T150405Z"

// Snapshot describes one stored backup object.
type Snapshot struct {
	Key       string    `json:"key" yaml:"key"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type Manager struct {
	cfg    Config
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.S3.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.Passphrase == "" {
		return nil, errors.New("backup passphrase is required")
	}
	return newManager(cfg, newS3Client(cfg.S3), logger), nil
}

func newManager(cfg Config, client s3Client, logger *slog.Logger) *Manager {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = "prospector"
	}
	return &Manager{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func newS3Client(cfg S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Create snapshots db with VACUUM INTO, encrypts the copy and uploads it.
func (m *Manager) Create(ctx context.Context, db *sql.DB) (Snapshot, error) {
	tmpDir, err := os.MkdirTemp("", "prospector-backup-")
	if err != nil {
		return Snapshot{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapPath := filepath.Join(tmpDir, "ledger.db")
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", snapPath); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot database: %w", err)
	}
	plain, err := os.ReadFile(snapPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return Snapshot{}, err
	}

	created := m.now().UTC()
	key := fmt.Sprintf("%s/ledger-%s.db.enc", m.cfg.Prefix, created.Format(timeLayout))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("upload to s3: %w", err)
	}

	snap := Snapshot{Key: key, Size: int64(len(sealed)), CreatedAt: created}
	m.logger.Info("backup uploaded", "key", key, "bytes", snap.Size)
	return snap, nil
}

// List returns stored snapshots, newest first.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	var (
		snaps []Snapshot
		token *string
	)
	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.cfg.S3.Bucket),
			Prefix:            aws.String(m.cfg.Prefix + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			created, ok := parseKeyTime(key)
			if !ok {
				continue
			}
			snaps = append(snaps, Snapshot{Key: key, Size: aws.ToInt64(obj.Size), CreatedAt: created})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

// Restore downloads and decrypts the snapshot at key, checks its integrity
// and writes it to dstPath. The running service must be stopped first.
func (m *Manager) Restore(ctx context.Context, key, dstPath string) error {
	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read download: %w", err)
	}
	plain, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	tmp := dstPath + ".restore"
	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(ctx, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dstPath + "-wal")
	os.Remove(dstPath + "-shm")

	m.logger.Info("backup restored", "key", key, "path", dstPath)
	return nil
}

// Prune deletes snapshots older than retention and returns the removed keys.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) ([]string, error) {
	snaps, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := m.now().UTC().Add(-retention)
	var removed []string
	for _, s := range snaps {
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(s.Key),
		}); err != nil {
			m.logger.Error("delete old backup", "key", s.Key, "error", err)
			continue
		}
		removed = append(removed, s.Key)
	}
	return removed, nil
}

func parseKeyTime(key string) (time.Time, bool) {
	name := filepath.Base(key)
	if !strings.HasPrefix(name, "ledger-") || !strings.HasSuffix(name, ".db.enc") {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, "ledger-"), ".db.enc")
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
