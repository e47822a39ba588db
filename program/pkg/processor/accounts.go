package processor

import (
	"errors"

	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/malbeclabs/biox/program/pkg/token"
)

func requireSigner(ic *runtime.InvokeContext, i int) error {
	if !ic.IsSigner(i) {
		return runtime.ErrAccountNotSigner.Withf("%s", ic.Key(i))
	}
	return nil
}

// verifyAddress checks the account at i against its canonical derivation and returns the bump.
func (p *Processor) verifyAddress(ic *runtime.InvokeContext, i int, seeds [][]byte) (uint8, error) {
	bump, err := pda.Verify(p.cfg.ProgramID, ic.Key(i), seeds)
	if err != nil {
		return 0, runtime.ErrConstraintSeeds.Withf("%v", err)
	}
	return bump, nil
}

func (p *Processor) verifyMint(ic *runtime.InvokeContext, i int) error {
	if !ic.Key(i).Equals(p.cfg.Mint) {
		return runtime.ErrConstraintAddress.Withf("mint %s, want %s", ic.Key(i), p.cfg.Mint)
	}
	return nil
}

func decodeInto(acct *accountsdb.Account, unmarshal func([]byte) error) error {
	err := unmarshal(acct.Data)
	if errors.Is(err, state.ErrDiscriminatorMismatch) {
		return runtime.ErrAccountDiscriminatorMismatch.Withf("%s", acct.Address)
	}
	if err != nil {
		return runtime.ErrAccountDidNotDeserialize.Withf("%s: %v", acct.Address, err)
	}
	return nil
}

func (p *Processor) loadProgramState(ic *runtime.InvokeContext, i int) (*state.ProgramState, error) {
	acct, err := ic.GetOwned(i)
	if err != nil {
		return nil, err
	}
	var st state.ProgramState
	if err := decodeInto(acct, st.Unmarshal); err != nil {
		return nil, err
	}
	if err := pda.VerifyWithBump(p.cfg.ProgramID, acct.Address, pda.ProgramStateSeeds(), st.Bump); err != nil {
		return nil, runtime.ErrConstraintSeeds.Withf("%v", err)
	}
	return &st, nil
}

func (p *Processor) loadPaper(ic *runtime.InvokeContext, i int, paperID uint64) (*state.ResearchPaper, error) {
	acct, err := ic.GetOwned(i)
	if err != nil {
		return nil, err
	}
	var paper state.ResearchPaper
	if err := decodeInto(acct, paper.Unmarshal); err != nil {
		return nil, err
	}
	if paper.ID != paperID {
		return nil, runtime.ErrConstraintSeeds.Withf("paper %d supplied for id %d", paper.ID, paperID)
	}
	if err := pda.VerifyWithBump(p.cfg.ProgramID, acct.Address, pda.PaperSeeds(paperID), paper.Bump); err != nil {
		return nil, runtime.ErrConstraintSeeds.Withf("%v", err)
	}
	return &paper, nil
}

type marshaler interface {
	Marshal() ([]byte, error)
}

func save(ic *runtime.InvokeContext, i int, record marshaler) error {
	data, err := record.Marshal()
	if err != nil {
		return err
	}
	return ic.Update(i, data)
}

func create(ic *runtime.InvokeContext, i int, seeds [][]byte, bump uint8, record marshaler) error {
	data, err := record.Marshal()
	if err != nil {
		return err
	}
	return ic.CreateProgramAccount(i, withBump(seeds, bump), data)
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// loadTokenAccount reads a token account. found is false when nothing lives at the address.
func (p *Processor) loadTokenAccount(ic *runtime.InvokeContext, i int) (acct *token.Account, found bool, err error) {
	raw, err := ic.Get(i)
	if errors.Is(err, accountsdb.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !raw.Owner.Equals(p.cfg.TokenProgramID) {
		return nil, true, runtime.ErrAccountOwnedByWrongProgram.Withf("%s is not a token account", raw.Address)
	}
	acct, err = token.Load(p.cfg.TokenProgramID, raw)
	if err != nil {
		return nil, true, runtime.ErrAccountDidNotDeserialize.Withf("%s: %v", raw.Address, err)
	}
	return acct, true, nil
}

func emit(ic *runtime.InvokeContext, ev state.Event) error {
	line, err := state.EventLogLine(ev)
	if err != nil {
		return err
	}
	ic.Log(line)
	ic.Emit(ev)
	return nil
}
