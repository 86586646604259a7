package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/obelisc/obelisc/emu"
	"github.com/obelisc/obelisc/riscv"
)

var (
	RunMaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "Instruction budget for the run. Exceeding it is an error. 0 means no budget.",
		Value: 0,
	}
	RunInfoAtFlag = &cli.Uint64Flag{
		Name:  "info-at",
		Usage: "Log execution progress every N steps. 0 disables progress logging.",
		Value: 0,
	}
	RunSnapshotFlag = &cli.PathFlag{
		Name:  "snapshot",
		Usage: "Write the final VM state to this path. Format follows the extension: .bin[.gz] is binary, anything else JSON, .gz compressed.",
	}
	RunDumpMemFlag = &cli.Uint64Flag{
		Name:  "dump-mem",
		Usage: "Hexdump the first N bytes of guest memory after the run. 0 disables.",
		Value: 0,
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}
)

// dumpRegisters prints every register with its ABI name, then the final pc.
func dumpRegisters(w io.Writer, state *emu.VMState) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for i, v := range state.Registers {
		fmt.Fprintf(tw, "x%d\t%s\t= 0x%x\n", i, riscv.RegNames[i], v)
	}
	fmt.Fprintf(tw, "pc\t\t= 0x%x\n", state.PC)
	return tw.Flush()
}

// dumpMemory hexdumps the first n bytes of guest RAM.
func dumpMemory(w io.Writer, state *emu.VMState, n uint64) error {
	if n > emu.MemorySize {
		n = emu.MemorySize
	}
	d := hex.Dumper(w)
	if _, err := io.Copy(d, state.Memory.ReadMemoryRange(emu.MemoryBase, n)); err != nil {
		return err
	}
	return d.Close()
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one image argument, got %d", ctx.NArg())
	}
	path := ctx.Args().First()
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image %q: %w", path, err)
	}
	state, err := emu.NewVMState(code)
	if err != nil {
		return fmt.Errorf("failed to load image %q: %w", path, err)
	}

	l := Logger(os.Stderr, log.LevelInfo)
	l.Info("loaded image", "path", path, "codeSize", state.CodeSize, "pc", HexU64(state.PC))

	maxSteps := ctx.Uint64(RunMaxStepsFlag.Name)
	infoAt := ctx.Uint64(RunInfoAtFlag.Name)

	start := time.Now()

	for !state.Exited {
		if state.Step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Context.Err(); err != nil {
				return err
			}
		}

		step := state.Step

		if maxSteps != 0 && step >= maxSteps {
			return fmt.Errorf("exceeded step budget of %d at pc %v", maxSteps, HexU64(state.PC))
		}

		if infoAt != 0 && step%infoAt == 0 {
			delta := time.Since(start)
			l.Info("processing",
				"step", step,
				"pc", HexU64(state.PC),
				"insn", HexU32(state.Instr()),
				"ips", float64(step)/(float64(delta)/float64(time.Second)),
				"pages", state.Memory.PageCount(),
				"mem", state.Memory.Usage(),
			)
		}

		if err := emu.Step(state); err != nil {
			return fmt.Errorf("failed at step %d (pc %v): %w", step, HexU64(state.PC), err)
		}
	}

	l.Info("execution complete",
		"steps", state.Step,
		"pc", HexU64(state.PC),
		"elapsed", time.Since(start),
		"pages", state.Memory.PageCount(),
		"mem", state.Memory.Usage(),
	)

	if err := dumpRegisters(os.Stdout, state); err != nil {
		return fmt.Errorf("failed to dump registers: %w", err)
	}
	if n := ctx.Uint64(RunDumpMemFlag.Name); n != 0 {
		if err := dumpMemory(os.Stdout, state, n); err != nil {
			return fmt.Errorf("failed to dump memory: %w", err)
		}
	}
	if out := ctx.Path(RunSnapshotFlag.Name); out != "" {
		if err := emu.WriteVMState(out, state); err != nil {
			return fmt.Errorf("failed to write state snapshot: %w", err)
		}
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a flat RV64I binary image until it leaves the code region.",
	Description: "Run a flat RV64I binary image until it leaves the code region. The image is mapped at the base address, executed, and the final register file is printed. See flags for snapshots and memory dumps.",
	ArgsUsage:   "<image>",
	Action:      Run,
	Flags: []cli.Flag{
		RunMaxStepsFlag,
		RunInfoAtFlag,
		RunSnapshotFlag,
		RunDumpMemFlag,
		RunPProfCPU,
	},
}
