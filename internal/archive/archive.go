// Package archive persists closed sessions' decision traces for offline
// inspection. Archival is strictly best-effort: the session is already gone
// when the trace is written, so failures are logged and dropped.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink stores one rendered trace per closed session.
type Sink interface {
	Store(ctx context.Context, sessionID string, trace []string) error
}

// Config selects and parameterizes the sink backend.
type Config struct {
	Backend        string // "none", "local" or "minio"
	LocalRoot      string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// New builds the configured sink; Backend "none" (or empty) returns nil.
func New(cfg Config) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "local":
		root := cfg.LocalRoot
		if root == "" {
			root = "/tmp/supersonic-traces"
		}
		return &localSink{root: root}, nil
	case "minio":
		if strings.TrimSpace(cfg.MinIOEndpoint) == "" {
			return nil, fmt.Errorf("minio endpoint is required when SUPERSONIC_ARCHIVE_BACKEND=minio")
		}
		client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		bucket := strings.TrimSpace(cfg.MinIOBucket)
		if bucket == "" {
			bucket = "supersonic-traces"
		}
		return &minioSink{client: client, bucket: bucket}, nil
	default:
		return nil, fmt.Errorf("unsupported SUPERSONIC_ARCHIVE_BACKEND value %q", cfg.Backend)
	}
}

// BestEffort wraps a sink into the session manager's archive hook.
func BestEffort(s Sink) func(ctx context.Context, sessionID string, trace []string) {
	if s == nil {
		return nil
	}
	return func(ctx context.Context, sessionID string, trace []string) {
		if err := s.Store(ctx, sessionID, trace); err != nil {
			log.Printf("archive trace for %s: %v", sessionID, err)
		}
	}
}

func render(trace []string) []byte {
	var b bytes.Buffer
	for _, line := range trace {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func objectName(sessionID string) string {
	return fmt.Sprintf("%s/%s/schedule.txt", time.Now().UTC().Format("2006-01-02"), sessionID)
}

type localSink struct {
	root string
}

func (l *localSink) Store(_ context.Context, sessionID string, trace []string) error {
	path := filepath.Join(l.root, objectName(sessionID))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, render(trace), 0o644)
}

type minioSink struct {
	client *minio.Client
	bucket string
}

func (m *minioSink) Store(ctx context.Context, sessionID string, trace []string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	body := render(trace)
	_, err = m.client.PutObject(ctx, m.bucket, objectName(sessionID),
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	return err
}
