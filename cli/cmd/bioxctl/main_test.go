package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/api/handlers"
	programtesting "github.com/malbeclabs/biox/program/pkg/testing"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func writeKeypair(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

// The command tree and viper are process globals, so these steps run in order.
func TestBiox_CLI_Commands(t *testing.T) {
	l := programtesting.NewLedger(t)
	api, err := handlers.New(handlers.Config{
		Logger:   bioxtesting.NewLogger(),
		Executor: l.Executor,
		Store:    l.Store,
		Program:  l.Config,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	adminKey := writeKeypair(t, l.Admin)
	author := solana.NewWallet().PrivateKey
	authorKey := writeKeypair(t, author)
	mintKey := writeKeypair(t, l.MintAuthority)
	strangerKey := writeKeypair(t, solana.NewWallet().PrivateKey)

	run := func(keypair string, args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append([]string{"--api-url", srv.URL, "--keypair", keypair}, args...))
		err := rootCmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	out, err := run(adminKey, "pause")
	require.NoError(t, err)
	require.Contains(t, out, "Event:     PauseToggledEvent")
	_, err = run(adminKey, "pause")
	require.NoError(t, err)

	out, err = run(authorKey, "create-token-account")
	require.NoError(t, err)
	require.Contains(t, out, "Account:")

	_, err = run(mintKey, "mint", author.PublicKey().String(), "12.5")
	require.NoError(t, err)
	out, err = run(authorKey, "balance")
	require.NoError(t, err)
	require.Contains(t, out, "12.5")

	out, err = run(authorKey, "submit",
		"--title", "Soil microbiome shifts under drought stress",
		"--abstract", "A longitudinal survey.",
		"--ipfs", "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o",
		"--author", "C. Field", "--author", "D. Root",
		"--goal", "5",
		"--days", "14",
	)
	require.NoError(t, err)
	require.Contains(t, out, "Paper:     0")
	require.Contains(t, out, "Event:     PaperSubmittedEvent")

	_, err = run(strangerKey, "publish", "0")
	require.ErrorContains(t, err, "Unauthorized")
	_, err = run(authorKey, "publish", "0")
	require.NoError(t, err)
	_, err = run(authorKey, "publish", "0")
	require.ErrorContains(t, err, "InvalidPaperStatus")

	// The admin may publish on an author's behalf.
	out, err = run(authorKey, "submit",
		"--title", "Root exudates and nitrogen cycling",
		"--abstract", "A greenhouse study.",
		"--ipfs", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		"--author", "C. Field",
		"--goal", "5",
		"--days", "14",
	)
	require.NoError(t, err)
	require.Contains(t, out, "Paper:     1")
	out, err = run(adminKey, "publish", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Event:     PaperPublishedEvent")
	out, err = run(authorKey, "paper", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Status:    published")

	out, err = run(authorKey, "paper", "0")
	require.NoError(t, err)
	require.Contains(t, out, "Status:    published")
	require.Contains(t, out, "Funding:   0 / 5 (0 contributions)")

	_, err = run(adminKey, "settings")
	require.ErrorContains(t, err, "nothing to update")
	_, err = run(adminKey, "settings", "--fee-bps", "300")
	require.NoError(t, err)

	_, err = run(authorKey, "publish", "x")
	require.ErrorContains(t, err, "invalid paper id")

	out, err = run(authorKey, "state", "--json")
	require.NoError(t, err)
	var st struct {
		PaperCount      uint64 `json:"paperCount"`
		PlatformFeeRate uint16 `json:"platformFeeRate"`
		IsPaused        bool   `json:"isPaused"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.Equal(t, uint64(2), st.PaperCount)
	require.Equal(t, uint16(300), st.PlatformFeeRate)
	require.False(t, st.IsPaused)
}
