package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/program/pkg/state"
)

// SnapshotRecord is one line of an account store snapshot.
type SnapshotRecord struct {
	Address solana.PublicKey `json:"address"`
	Owner   solana.PublicKey `json:"owner"`
	Version uint64           `json:"version"`
	Data    []byte           `json:"data"`

	// Kind names research program records; token accounts and mints leave it empty.
	Kind string `json:"kind,omitempty"`
}

// WriteSnapshot writes every committed account as JSON lines and returns how many
// were written.
func WriteSnapshot(ctx context.Context, store accountsdb.Store, programID solana.PublicKey, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	err := store.ForEach(ctx, func(acct *accountsdb.Account) error {
		rec := SnapshotRecord{
			Address: acct.Address,
			Owner:   acct.Owner,
			Version: acct.Version,
			Data:    acct.Data,
		}
		if acct.Owner.Equals(programID) {
			rec.Kind = state.Kind(acct.Data)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode account %s: %w", acct.Address, err)
		}
		count++
		return nil
	})
	return count, err
}

// ObjectPutter is the subset of the S3 client a snapshot upload needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type SnapshotConfig struct {
	Bucket string

	// Prefix is prepended to the generated key accounts-<UTC timestamp>.jsonl.
	Prefix string

	ProgramID solana.PublicKey
	Now       func() time.Time
}

func (cfg *SnapshotConfig) Validate() error {
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return nil
}

// SnapshotS3 exports the account store to s3://Bucket/Prefix... and returns the key.
func SnapshotS3(ctx context.Context, log *slog.Logger, store accountsdb.Store, client ObjectPutter, cfg SnapshotConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	count, err := WriteSnapshot(ctx, store, cfg.ProgramID, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to read account store: %w", err)
	}

	key := cfg.Prefix + "accounts-" + cfg.Now().UTC().Format("20060102T150405Z") + ".jsonl"
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	log.Info("admin: snapshot uploaded", "bucket", cfg.Bucket, "key", key, "accounts", count, "bytes", buf.Len())
	return key, nil
}

// NewS3Client builds a client from the default AWS credential chain. A non-empty
// endpoint targets an S3-compatible service with path-style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
