package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/t81dev/hanoivm/pkg/disasm"
	"github.com/t81dev/hanoivm/pkg/loader"
	"github.com/t81dev/hanoivm/pkg/trace"
	"github.com/t81dev/hanoivm/pkg/vm"
)

// The interactive debug console. Commands:
//
//	s [n]      execute n steps (default 1)
//	c          continue to breakpoint, halt or end
//	p          print the stack
//	r          print registers and machine state
//	d          disassemble around the instruction pointer
//	br <addr>  toggle a breakpoint at a byte offset
//	t          print recent entropy events
//	reset      restart the program from offset 0
//	q          quit
var replCommands = []string{"s", "c", "p", "r", "d", "br", "t", "reset", "q"}

type console struct {
	prog        *loader.Program
	ctx         *vm.Context
	ring        *trace.Ring
	breakpoints map[int]bool
}

func newConsole(prog *loader.Program) *console {
	c := &console{prog: prog, breakpoints: map[int]bool{}}
	c.reset()
	return c
}

func (c *console) reset() {
	c.ring = trace.NewRing(1024)
	c.ctx = vm.New(c.prog, vm.Config{Sink: c.ring})
}

// runConsole drives the liner loop until quit or Ctrl-C.
func runConsole(prog *loader.Program) error {
	c := newConsole(prog)
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		var out []string
		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, l) {
				out = append(out, cmd)
			}
		}
		return out
	})

	fmt.Printf("hvm repl: %s, %d instructions; ? for help\n",
		prog.Fingerprint, len(prog.Index))
	for {
		input, err := line.Prompt("hvm> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}
		line.AppendHistory(input)
		quit, err := c.dispatch(strings.Fields(input))
		if err != nil {
			fmt.Println("error: " + err.Error())
		}
		if quit {
			return nil
		}
	}
}

func (c *console) dispatch(fields []string) (quit bool, err error) {
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "q", "quit":
		return true, nil
	case "?", "help":
		fmt.Println("s [n] step, c continue, p stack, r registers, d disasm, br <addr> breakpoint, t trace, reset, q quit")
	case "s":
		n := 1
		if len(fields) > 1 {
			if n, err = strconv.Atoi(fields[1]); err != nil {
				return false, err
			}
		}
		for i := 0; i < n && c.ctx.Step(); i++ {
		}
		c.status()
	case "c":
		for c.ctx.Step() {
			if c.breakpoints[c.ctx.IP()] {
				fmt.Printf("breakpoint at %04X\n", c.ctx.IP())
				break
			}
		}
		c.status()
	case "p":
		stack := c.ctx.Stack()
		if len(stack) == 0 {
			fmt.Println("stack empty")
		}
		for i := len(stack) - 1; i >= 0; i-- {
			fmt.Printf("  [%d] %s\n", i, stack[i].String())
		}
	case "r":
		c.status()
		for i := 0; i < vm.RegisterCount; i++ {
			if i%14 == 0 {
				fmt.Println()
			}
			fmt.Printf("r%02d=%02d ", i, c.ctx.Register(i))
		}
		fmt.Println()
	case "d":
		c.disasmAround()
	case "t":
		evs := c.ring.Events()
		if len(evs) > 16 {
			evs = evs[len(evs)-16:]
		}
		for _, e := range evs {
			fmt.Printf("  %5d %-24s %02X\n", e.Seq, e.Op, e.Summary)
		}
	case "br":
		if len(fields) < 2 {
			return false, fmt.Errorf("br needs an address")
		}
		addr, err := strconv.ParseInt(fields[1], 0, 32)
		if err != nil {
			return false, err
		}
		a := int(addr)
		if c.breakpoints[a] {
			delete(c.breakpoints, a)
			fmt.Printf("breakpoint cleared at %04X\n", a)
		} else {
			c.breakpoints[a] = true
			fmt.Printf("breakpoint set at %04X\n", a)
		}
	case "reset":
		c.reset()
		fmt.Println("reset")
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

func (c *console) status() {
	state := "running"
	if c.ctx.Halted() {
		state = "halted"
		if f := c.ctx.Fault(); f != nil {
			state = "halted: " + f.Error()
		}
	}
	fmt.Printf("ip=%04X mode=%s depth=%d %s\n",
		c.ctx.IP(), c.ctx.Mode(), c.ctx.CallDepth(), state)
}

// disasmAround lists a window of instructions surrounding the ip.
func (c *console) disasmAround() {
	recs := disasm.Disassemble(c.prog)
	pos := sort.Search(len(recs), func(i int) bool { return recs[i].Addr >= c.ctx.IP() })
	lo := pos - 2
	if lo < 0 {
		lo = 0
	}
	hi := pos + 3
	if hi > len(recs) {
		hi = len(recs)
	}
	for _, r := range recs[lo:hi] {
		marker := "  "
		if r.Addr == c.ctx.IP() {
			marker = "=>"
		}
		line := disasm.Format([]disasm.Record{r})
		fmt.Print(marker + " " + line)
	}
}
