package dberror_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/malbeclabs/biox/api/handlers/dberror"
	"github.com/stretchr/testify/require"
)

func TestBiox_DBError_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want dberror.ErrorType
	}{
		{"nil", nil, dberror.ErrorTypeUnknown},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), dberror.ErrorTypeConnectivity},
		{"closed pool", fmt.Errorf("failed to begin postgres transaction: %w", errors.New("closed pool")), dberror.ErrorTypeConnectivity},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, dberror.ErrorTypeConnectivity},
		{"pg canceled", &pgconn.PgError{Code: "57014"}, dberror.ErrorTypeTimeout},
		{"pg auth", &pgconn.PgError{Code: "28P01"}, dberror.ErrorTypeAuth},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, dberror.ErrorTypeQuery},
		{"timeout text", errors.New("i/o timeout"), dberror.ErrorTypeConnectivity},
		{"other", errors.New("account discriminator mismatch"), dberror.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, dberror.Classify(tt.err))
		})
	}
}

func TestBiox_DBError_Retry(t *testing.T) {
	t.Parallel()

	cfg := dberror.RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	got, err := dberror.Retry(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 3, calls)

	calls = 0
	_, err = dberror.Retry(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("account not found")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
