// Package archive keeps a zstd-compressed copy of every resolved proposal
// document in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// zstd encoders and decoders are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// Entry is one document revision to archive.
type Entry struct {
	Repo      string
	PRNumber  int
	FIPNumber int
	Path      string
	Content   string
}

// Key is the object name for the entry: <owner>/<name>/pr-<n>/fip-<num>.md.zst.
func Key(repo string, prNumber, fipNumber int) string {
	return fmt.Sprintf("%s/pr-%d/fip-%04d.md.zst", repo, prNumber, fipNumber)
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Archive struct {
	client objectStore
	bucket string
	// open reads an object; GetObject returns a lazy reader that fakes cannot build.
	open func(ctx context.Context, key string) (io.ReadCloser, error)
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, opts Options) (*Archive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	a := newArchive(client, opts.Bucket)
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func newArchive(client objectStore, bucket string) *Archive {
	a := &Archive{client: client, bucket: bucket}
	a.open = func(ctx context.Context, key string) (io.ReadCloser, error) {
		return a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	}
	return a
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Store writes the compressed document and returns its key. Storing the same
// request again overwrites the previous revision.
func (a *Archive) Store(ctx context.Context, entry Entry) (string, error) {
	key := Key(entry.Repo, entry.PRNumber, entry.FIPNumber)
	compressed := encoder.EncodeAll([]byte(entry.Content), nil)

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), minio.PutObjectOptions{
		ContentType:     "text/markdown; charset=utf-8",
		ContentEncoding: "zstd",
		UserMetadata: map[string]string{
			"source-path":  entry.Path,
			"pr-number":    strconv.Itoa(entry.PRNumber),
			"fip-number":   strconv.Itoa(entry.FIPNumber),
			"uncompressed": strconv.Itoa(len(entry.Content)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Fetch returns the decompressed document stored at key.
func (a *Archive) Fetch(ctx context.Context, key string) (string, error) {
	obj, err := a.open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	compressed, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	content, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress %s: %w", key, err)
	}
	return string(content), nil
}
