package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/program/pkg/processor"
)

// ProgramFromEnv reads the deployment constants of the research program:
// BIOX_PROGRAM_ID, BIOX_TOKEN_PROGRAM_ID, BIOX_MINT, BIOX_MINT_DECIMALS and
// BIOX_MAX_VOTE_WEIGHT. Only the mint is required.
func ProgramFromEnv() (processor.Config, error) {
	var cfg processor.Config
	var err error
	if cfg.ProgramID, err = envPublicKey("BIOX_PROGRAM_ID"); err != nil {
		return cfg, err
	}
	if cfg.TokenProgramID, err = envPublicKey("BIOX_TOKEN_PROGRAM_ID"); err != nil {
		return cfg, err
	}
	if cfg.Mint, err = envPublicKey("BIOX_MINT"); err != nil {
		return cfg, err
	}

	cfg.Decimals = 6
	if v := os.Getenv("BIOX_MINT_DECIMALS"); v != "" {
		d, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return cfg, fmt.Errorf("invalid BIOX_MINT_DECIMALS: %w", err)
		}
		cfg.Decimals = uint8(d)
	}
	if v := os.Getenv("BIOX_MAX_VOTE_WEIGHT"); v != "" {
		if cfg.MaxVoteWeight, err = strconv.ParseUint(v, 10, 64); err != nil {
			return cfg, fmt.Errorf("invalid BIOX_MAX_VOTE_WEIGHT: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func envPublicKey(name string) (solana.PublicKey, error) {
	v := os.Getenv(name)
	if v == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return key, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}
