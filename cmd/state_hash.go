package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/obelisc/obelisc/emu"
)

var StateHashInputFlag = &cli.PathFlag{
	Name:      "input",
	Usage:     "Path of the state snapshot to hash",
	TakesFile: true,
	Required:  true,
}

func StateHash(ctx *cli.Context) error {
	input := ctx.Path(StateHashInputFlag.Name)
	state, err := emu.LoadVMStateFromFile(input)
	if err != nil {
		return fmt.Errorf("invalid input state (%v): %w", input, err)
	}
	stateHash, err := state.EncodeWitness().StateHash()
	if err != nil {
		return fmt.Errorf("failed to compute state hash: %w", err)
	}
	fmt.Println(stateHash.Hex())
	return nil
}

var StateHashCommand = &cli.Command{
	Name:        "state-hash",
	Usage:       "Compute the canonical hash of a state snapshot",
	Description: "Compute the canonical hash of a state snapshot. The state hash is written to stdout.",
	Action:      StateHash,
	Flags: []cli.Flag{
		StateHashInputFlag,
	},
}
