package admin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/malbeclabs/biox/program/pkg/processor"
	programtesting "github.com/malbeclabs/biox/program/pkg/testing"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestBiox_Admin_SnapshotS3(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := programtesting.NewLedger(t)
	author := l.Wallet(t, 0)
	ix, err := l.Builder.SubmitPaper(author.PublicKey(), 0, programtesting.SubmitArgs(2*programtesting.OneToken, 30))
	require.NoError(t, err)
	l.MustSend(t, author, ix)

	putter := &fakePutter{}
	key, err := SnapshotS3(ctx, bioxtesting.NewLogger(), l.Store, putter, SnapshotConfig{
		Bucket:    "biox-snapshots",
		Prefix:    "devnet/",
		ProgramID: processor.DefaultProgramID,
		Now:       func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
	})
	require.NoError(t, err)
	require.Equal(t, "devnet/accounts-20260304T050607Z.jsonl", key)
	require.Equal(t, "biox-snapshots", putter.bucket)
	require.Equal(t, key, putter.key)
	require.Equal(t, "application/x-ndjson", putter.contentType)

	kinds := make(map[string]int)
	total := 0
	scanner := bufio.NewScanner(bytes.NewReader(putter.body))
	for scanner.Scan() {
		var rec SnapshotRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		require.False(t, rec.Address.IsZero())
		kinds[rec.Kind]++
		total++
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, 1, kinds["programState"])
	require.Equal(t, 1, kinds["researchPaper"])
	// The mint, the platform vault and the author's token account.
	require.Equal(t, 3, kinds[""])
	require.Equal(t, 5, total)
}

func TestBiox_Admin_SnapshotS3Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := programtesting.NewLedger(t)

	_, err := SnapshotS3(ctx, bioxtesting.NewLogger(), l.Store, &fakePutter{}, SnapshotConfig{ProgramID: processor.DefaultProgramID})
	require.ErrorContains(t, err, "bucket is required")

	_, err = SnapshotS3(ctx, bioxtesting.NewLogger(), l.Store, &fakePutter{err: errors.New("access denied")}, SnapshotConfig{
		Bucket:    "b",
		ProgramID: processor.DefaultProgramID,
	})
	require.ErrorContains(t, err, "access denied")
}

func TestBiox_Admin_Confirm(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	ok, err := confirm(strings.NewReader("YES\n"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, out.String(), "Type 'yes' to confirm")

	ok, err = confirm(strings.NewReader("no"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}
