package processor

import (
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/malbeclabs/biox/program/pkg/token"
)

// initialize creates the program state singleton and the platform fee vault. A second
// call fails because the state address is already in use.
func (p *Processor) initialize(ic *runtime.InvokeContext) error {
	if err := requireSigner(ic, instruction.InitializeAdmin); err != nil {
		return err
	}
	if err := p.verifyMint(ic, instruction.InitializeMint); err != nil {
		return err
	}
	stateBump, err := p.verifyAddress(ic, instruction.InitializeProgramState, pda.ProgramStateSeeds())
	if err != nil {
		return err
	}
	vaultBump, err := p.verifyAddress(ic, instruction.InitializePlatformVault, pda.PlatformVaultSeeds())
	if err != nil {
		return err
	}

	now := ic.Clock().UnixTimestamp
	st := &state.ProgramState{
		Admin:            ic.Key(instruction.InitializeAdmin),
		PlatformFeeRate:  state.DefaultPlatformFeeRate,
		MinFundingGoal:   state.DefaultMinFundingGoal,
		MaxFundingPeriod: state.DefaultMaxFundingPeriod,
		Bump:             stateBump,
	}
	if err := create(ic, instruction.InitializeProgramState, pda.ProgramStateSeeds(), stateBump, st); err != nil {
		return err
	}

	// The vault is a token account owned by the program state PDA.
	vault := ic.Key(instruction.InitializePlatformVault)
	if err := ic.Invoke(
		token.NewInitializeAccountInstruction(p.cfg.TokenProgramID, vault, p.cfg.Mint, ic.Key(instruction.InitializeProgramState), true),
		withBump(pda.PlatformVaultSeeds(), vaultBump),
	); err != nil {
		return err
	}

	return emit(ic, &state.ProgramInitializedEvent{
		Admin:            st.Admin,
		PlatformFeeRate:  st.PlatformFeeRate,
		MinFundingGoal:   st.MinFundingGoal,
		MaxFundingPeriod: st.MaxFundingPeriod,
		Timestamp:        now,
	})
}

func (p *Processor) loadAdminState(ic *runtime.InvokeContext) (*state.ProgramState, error) {
	if err := requireSigner(ic, instruction.AdminAdmin); err != nil {
		return nil, err
	}
	st, err := p.loadProgramState(ic, instruction.AdminProgramState)
	if err != nil {
		return nil, err
	}
	if !st.Admin.Equals(ic.Key(instruction.AdminAdmin)) {
		return nil, ErrUnauthorized.Withf("%s is not the admin", ic.Key(instruction.AdminAdmin))
	}
	return st, nil
}

// togglePause is not gated by the pause flag, otherwise a paused program could never resume.
func (p *Processor) togglePause(ic *runtime.InvokeContext) error {
	st, err := p.loadAdminState(ic)
	if err != nil {
		return err
	}
	st.IsPaused = !st.IsPaused
	if err := save(ic, instruction.AdminProgramState, st); err != nil {
		return err
	}
	ic.Logf("Program paused: %t", st.IsPaused)
	return emit(ic, &state.PauseToggledEvent{
		IsPaused:  st.IsPaused,
		Timestamp: ic.Clock().UnixTimestamp,
	})
}

func (p *Processor) updateSettings(ic *runtime.InvokeContext, args *instruction.UpdateSettingsArgs) error {
	st, err := p.loadAdminState(ic)
	if err != nil {
		return err
	}
	if args.PlatformFeeRate != nil {
		if *args.PlatformFeeRate > state.MaxPlatformFeeRate {
			return ErrFeeTooHigh.Withf("%d bps exceeds %d", *args.PlatformFeeRate, state.MaxPlatformFeeRate)
		}
		st.PlatformFeeRate = *args.PlatformFeeRate
	}
	if args.MinFundingGoal != nil {
		st.MinFundingGoal = *args.MinFundingGoal
	}
	if args.MaxFundingPeriod != nil {
		if *args.MaxFundingPeriod <= 0 {
			return ErrInvalidFundingPeriod.Withf("maximum period must be positive")
		}
		st.MaxFundingPeriod = *args.MaxFundingPeriod
	}
	if err := save(ic, instruction.AdminProgramState, st); err != nil {
		return err
	}
	return emit(ic, &state.SettingsUpdatedEvent{
		PlatformFeeRate:  st.PlatformFeeRate,
		MinFundingGoal:   st.MinFundingGoal,
		MaxFundingPeriod: st.MaxFundingPeriod,
		Timestamp:        ic.Clock().UnixTimestamp,
	})
}
