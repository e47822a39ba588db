package notify_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/indexer/pkg/notify"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/state"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type webhook struct {
	mu       sync.Mutex
	texts    []string
	failWith int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var msg struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(body, &msg)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failWith != 0 {
		rw.WriteHeader(w.failWith)
		return
	}
	w.texts = append(w.texts, msg.Text)
	_, _ = rw.Write([]byte("ok"))
}

func newNotifier(t *testing.T, url string) *notify.Notifier {
	t.Helper()
	n, err := notify.New(notify.Config{Logger: bioxtesting.NewLogger(), WebhookURL: url, Decimals: 6})
	require.NoError(t, err)
	return n
}

func TestBiox_Notify_PostsMilestones(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)

	author := solana.NewWallet().PublicKey()
	batch := &runtime.EventBatch{Slot: 9, Events: []runtime.Event{
		&state.PaperSubmittedEvent{PaperID: 1, Author: author, Title: "ignored"},
		&state.PaperPublishedEvent{PaperID: 1, Author: author},
		&state.PaperFundedEvent{PaperID: 1, Amount: 5, TotalFunding: 5},
		&state.PaperFundedEvent{PaperID: 1, Amount: 5, TotalFunding: 1_500_000, FullyFunded: true, GoalReached: true},
		&state.PaperFundedEvent{PaperID: 1, Amount: 5, TotalFunding: 1_500_005, FullyFunded: true},
		&state.FundsClaimedEvent{PaperID: 1, Author: author, Amount: 2_000_000},
	}}
	require.NoError(t, newNotifier(t, srv.URL).Publish(t.Context(), batch))

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Equal(t, []string{
		"Paper #1 published",
		"Paper #1 fully funded",
		"Funds claimed for paper #1",
	}, hook.texts)
}

func TestBiox_Notify_ReportsWebhookFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&webhook{failWith: http.StatusInternalServerError})
	t.Cleanup(srv.Close)

	batch := &runtime.EventBatch{Events: []runtime.Event{&state.PaperPublishedEvent{PaperID: 3}}}
	err := newNotifier(t, srv.URL).Publish(t.Context(), batch)
	require.ErrorContains(t, err, "PaperPublishedEvent")
}

func TestBiox_Notify_FormatAmount(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0", notify.FormatAmount(0, 6))
	require.Equal(t, "0.000001", notify.FormatAmount(1, 6))
	require.Equal(t, "1.5", notify.FormatAmount(1_500_000, 6))
	require.Equal(t, "5", notify.FormatAmount(5_000_000, 6))
	require.Equal(t, "42", notify.FormatAmount(42, 0))
}

func TestBiox_Notify_Config(t *testing.T) {
	t.Parallel()

	_, err := notify.New(notify.Config{Logger: bioxtesting.NewLogger()})
	require.Error(t, err)
}
