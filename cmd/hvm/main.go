// Command hvm is the reference host for HanoiVM bytecode: it loads,
// validates, disassembles and executes .hvm images.
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/disasm"
	"github.com/t81dev/hanoivm/pkg/loader"
	"github.com/t81dev/hanoivm/pkg/trace"
	"github.com/t81dev/hanoivm/pkg/vm"
)

// Exit codes of the reference host.
const (
	exitOK         = 0
	exitValidation = 1
	exitRuntime    = 2
	exitCancelled  = 3
	exitUsage      = 4
)

// exitError carries a process exit code through cobra's error path.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// fail formats the standard one-line diagnostic.
func fail(code int, kind string, err error) error {
	return &exitError{code: code, msg: fmt.Sprintf("[HVM %s] %v", kind, err)}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "hvm",
		Short:         "HanoiVM ternary stack machine for T81/T243/T729 bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// glog's -v/-logtostderr flags ride along on the root command.
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	// run command
	var modeStr string
	var session string
	var traceOn bool
	var traceOut string
	var useColor bool

	runCmd := &cobra.Command{
		Use:   "run <file.hvm>",
		Short: "Load and execute a bytecode image, printing the final stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := bytecode.ParseTier(modeStr)
			if err != nil {
				return &exitError{code: exitUsage, msg: err.Error()}
			}
			prog, err := loader.LoadFile(args[0], loader.Options{})
			if err != nil {
				return fail(exitValidation, loadErrKind(err), err)
			}

			ring := trace.NewRing(4096)
			var sink trace.Sink = trace.Nop{}
			if traceOn || traceOut != "" {
				sink = ring
			}
			if traceOn {
				sink = trace.Multi{ring, trace.NewWriter(os.Stderr)}
			}

			var cancelled atomic.Bool
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			go func() {
				<-sig
				cancelled.Store(true)
			}()

			ctx := vm.New(prog, vm.Config{
				InitialMode: mode,
				Session:     session,
				Sink:        sink,
				Cancelled:   cancelled.Load,
			})
			fmt.Printf("program %s (%d bytes, %d instructions)\n",
				prog.Fingerprint, prog.Len(), len(prog.Index))
			out := ctx.Run()

			if traceOut != "" {
				if err := dumpTrace(traceOut, ring); err != nil {
					glog.Errorf("trace export: %v", err)
				}
			}

			printStack(out, useColor)
			switch out.Kind {
			case vm.OutcomeCancelled:
				return fail(exitCancelled, "Cancelled", out.Fault)
			case vm.OutcomeFault:
				return fail(exitRuntime, out.Fault.Kind.String(), out.Fault)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&modeStr, "mode", "t81", "Initial tier: t81, t243 or t729")
	runCmd.Flags().StringVar(&session, "session", "", "Session id override")
	runCmd.Flags().BoolVar(&traceOn, "trace", false, "Stream entropy events to stderr")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write entropy events to a JSON file")
	runCmd.Flags().BoolVar(&useColor, "color", false, "Colorize output")

	// disasm command
	var disasmColor bool

	disasmCmd := &cobra.Command{
		Use:   "disasm <file.hvm>",
		Short: "Print a type-aware disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loader.LoadFile(args[0], loader.Options{})
			if err != nil {
				return fail(exitValidation, loadErrKind(err), err)
			}
			recs := disasm.Disassemble(prog)
			if disasmColor {
				fmt.Print(disasm.FormatColor(recs))
			} else {
				fmt.Print(disasm.Format(recs))
			}
			return nil
		},
	}
	disasmCmd.Flags().BoolVar(&disasmColor, "color", false, "Colorize the listing")

	// check command
	var workers int

	checkCmd := &cobra.Command{
		Use:   "check <file.hvm>...",
		Short: "Validate images without executing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := checkAll(args, workers)
			bad := 0
			for _, r := range results {
				if r.Err != nil {
					bad++
					fmt.Printf("%s: [HVM %s] %v\n", r.Path, loadErrKind(r.Err), r.Err)
					continue
				}
				head := "raw"
				if r.Headered {
					head = fmt.Sprintf("HVM0 v%d", r.Version)
				}
				fmt.Printf("%s: ok %s (%s, %d bytes, %d instructions)\n",
					r.Path, r.Fingerprint, head, r.Size, r.Instructions)
			}
			if bad > 0 {
				return &exitError{code: exitValidation, msg: fmt.Sprintf("%d of %d images failed validation", bad, len(results))}
			}
			return nil
		},
	}
	checkCmd.Flags().IntVar(&workers, "workers", 0, "Validation workers (0 = NumCPU)")

	// repl command
	replCmd := &cobra.Command{
		Use:   "repl <file.hvm>",
		Short: "Interactive debug console over a loaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loader.LoadFile(args[0], loader.Options{})
			if err != nil {
				return fail(exitValidation, loadErrKind(err), err)
			}
			return runConsole(prog)
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd, checkCmd, replCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

// loadErrKind maps a loader error to its diagnostic kind name.
func loadErrKind(err error) string {
	switch err.(type) {
	case *loader.ErrProgramTooLarge:
		return "ProgramTooLarge"
	case *bytecode.UnknownOpcodeError:
		return "UnknownOpcode"
	case *bytecode.TagMismatchError:
		return "TagMismatch"
	}
	return "MalformedOperand"
}

// printStack shows the final stack, top first.
func printStack(out vm.Outcome, useColor bool) {
	kind := out.Kind.String()
	if useColor {
		c := color.New(color.FgGreen)
		if out.Kind != vm.OutcomeOK {
			c = color.New(color.FgRed)
		}
		kind = c.Sprint(kind)
	}
	fmt.Printf("outcome: %s, stack depth %d\n", kind, len(out.Stack))
	for i := len(out.Stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, out.Stack[i].String())
	}
}

// dumpTrace writes the captured ring to a JSON file.
func dumpTrace(path string, ring *trace.Ring) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return trace.WriteJSON(f, ring.Events())
}
