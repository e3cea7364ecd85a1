package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/status"
	"github.com/agbru/policycalc/internal/ui"
)

// REPLConfig holds the defaults of an interactive session. Every request
// built by the session starts from Template.
type REPLConfig struct {
	// Template supplies country, policies, year and target of new requests.
	Template calc.Request
	// Timeout bounds each blocking calculation.
	Timeout time.Duration
	// Units are the regions of the "fanout" command.
	Units []string
	// FanOut are the options of the "fanout" command.
	FanOut []orchestration.FanOutOption
	// Verbose prints full result payloads.
	Verbose bool
}

// REPL is an interactive session driving one orchestrator. Blocking commands
// show the spinner; "start" runs a calculation in the background so several
// can be followed with "status" and "list".
type REPL struct {
	orch   *orchestration.Orchestrator
	config REPLConfig
	seq    int
	ids    []string
	in     io.Reader
	out    io.Writer
}

// NewREPL creates a session on orch.
func NewREPL(orch *orchestration.Orchestrator, config REPLConfig) *REPL {
	if config.Template.TargetType == "" {
		config.Template.TargetType = calc.TargetSimulation
	}
	return &REPL{orch: orch, config: config, in: os.Stdin, out: os.Stdout}
}

// SetInput sets a custom input reader (useful for testing).
func (r *REPL) SetInput(in io.Reader) { r.in = in }

// SetOutput sets a custom output writer (useful for testing).
func (r *REPL) SetOutput(out io.Writer) { r.out = out }

// Start reads and runs commands until "exit", EOF or ctx is done.
func (r *REPL) Start(ctx context.Context) {
	r.printBanner()
	r.printHelp()
	fmt.Fprintln(r.out)

	reader := bufio.NewReader(r.in)
	for ctx.Err() == nil {
		fmt.Fprint(r.out, ui.ColorGreen()+"policy> "+ui.ColorReset())

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(r.out, "%sRead error: %v%s\n", ui.ColorRed(), err, ui.ColorReset())
			continue
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !r.processCommand(ctx, input) {
			return
		}
	}
}

func (r *REPL) printBanner() {
	fmt.Fprintf(r.out, "\n%s╔══════════════════════════════════════════════════════════╗%s\n", ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s║%s        %sPolicy Calculator - Interactive Mode%s              %s║%s\n",
		ui.ColorCyan(), ui.ColorReset(), ui.ColorBold(), ui.ColorReset(), ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s╚══════════════════════════════════════════════════════════╝%s\n\n", ui.ColorCyan(), ui.ColorReset())
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "%sAvailable commands:%s\n", ui.ColorBold(), ui.ColorReset())
	for _, c := range [][2]string{
		{"household <population>", "Run a household calculation and wait"},
		{"economy [region]", "Run a society-wide calculation and wait"},
		{"fanout", "Run a society-wide calculation per configured region"},
		{"start <household|economy> <id> [population|region]", "Start in the background"},
		{"status <id>", "Show the cached status of a calculation"},
		{"cancel <id>", "Stop a running calculation"},
		{"list", "List the calculations of this session"},
		{"policy <baseline> [reform]", "Set the policies of new calculations"},
		{"year <yyyy>", "Set the time period of new calculations"},
		{"config", "Show the session defaults"},
		{"help", "Display this help"},
		{"exit / quit", "Exit interactive mode"},
	} {
		fmt.Fprintf(r.out, "  %s%-52s%s %s\n", ui.ColorYellow(), c[0], ui.ColorReset(), c[1])
	}
}

// processCommand runs one command and returns false to end the session.
func (r *REPL) processCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "household", "hh":
		if len(args) == 0 {
			r.usage("household <population>")
			return true
		}
		r.run(ctx, r.request(calc.Household, r.nextID(), args[0]))
	case "economy", "sw":
		region := ""
		if len(args) > 0 {
			region = args[0]
		}
		r.run(ctx, r.request(calc.SocietyWide, r.nextID(), region))
	case "fanout":
		r.fanOut(ctx)
	case "start":
		r.cmdStart(ctx, args)
	case "status", "st":
		r.cmdStatus(args)
	case "cancel":
		if len(args) == 0 {
			r.usage("cancel <id>")
			return true
		}
		r.orch.Cleanup(args[0])
		fmt.Fprintf(r.out, "Stopped %s%s%s.\n", ui.ColorCyan(), args[0], ui.ColorReset())
	case "list", "ls":
		r.cmdList()
	case "policy":
		if len(args) == 0 {
			r.usage("policy <baseline> [reform]")
			return true
		}
		r.config.Template.PolicyIDs = calc.PolicyIDs{Baseline: args[0]}
		if len(args) > 1 {
			r.config.Template.PolicyIDs.Reform = args[1]
		}
		fmt.Fprintf(r.out, "Policies set to baseline %s, reform %s.\n", args[0], r.config.Template.PolicyIDs.Effective())
	case "year":
		if len(args) == 0 {
			r.usage("year <yyyy>")
			return true
		}
		r.config.Template.Year = args[0]
		fmt.Fprintf(r.out, "Year set to %s.\n", args[0])
	case "config":
		r.cmdConfig()
	case "help", "h", "?":
		r.printHelp()
	case "exit", "quit", "q":
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", ui.ColorGreen(), ui.ColorReset())
		return false
	default:
		fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", ui.ColorRed(), cmd, ui.ColorReset())
		fmt.Fprintf(r.out, "Type %shelp%s to see available commands.\n", ui.ColorYellow(), ui.ColorReset())
	}
	return true
}

func (r *REPL) usage(s string) {
	fmt.Fprintf(r.out, "%sUsage: %s%s\n", ui.ColorRed(), s, ui.ColorReset())
}

func (r *REPL) nextID() string {
	r.seq++
	return fmt.Sprintf("calc-%d", r.seq)
}

// request builds a request from the template. arg is the population of a
// household calculation and the region of a society-wide one.
func (r *REPL) request(t calc.CalcType, id, arg string) calc.Request {
	req := r.config.Template
	req.CalcID = id
	req.CalcType = t
	if t == calc.Household {
		req.PopulationID = arg
	} else {
		req.Region = arg
		if req.PopulationID == "" {
			req.PopulationID = req.CountryID
		}
	}
	return req
}

func (r *REPL) remember(id string) {
	for _, known := range r.ids {
		if known == id {
			return
		}
	}
	r.ids = append(r.ids, id)
}

func (r *REPL) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.Timeout > 0 {
		return context.WithTimeout(ctx, r.config.Timeout)
	}
	return context.WithCancel(ctx)
}

func (r *REPL) run(ctx context.Context, req calc.Request) {
	r.remember(req.CalcID)
	ctx, cancel := r.context(ctx)
	defer cancel()
	results := orchestration.ExecuteCalculations(ctx, r.orch, []calc.Request{req}, CLIProgressReporter{}, r.out)
	r.present(results[0])
}

func (r *REPL) fanOut(ctx context.Context) {
	if len(r.config.Units) == 0 {
		fmt.Fprintf(r.out, "%sNo regions configured.%s\n", ui.ColorRed(), ui.ColorReset())
		return
	}
	req := r.request(calc.SocietyWide, r.nextID(), "")
	r.remember(req.CalcID)
	ctx, cancel := r.context(ctx)
	defer cancel()
	r.present(orchestration.ExecuteFanOut(ctx, r.orch, req, r.config.Units, CLIProgressReporter{}, r.out, r.config.FanOut...))
}

func (r *REPL) present(res orchestration.RunResult) {
	if err := res.Err(); err != nil {
		CLIResultPresenter{}.HandleError(err, res.Duration, r.out)
		return
	}
	DisplayResult(res.Status, res.Duration, r.config.Verbose, r.out)
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdStart(ctx context.Context, args []string) {
	if len(args) < 2 {
		r.usage("start <household|economy> <id> [population|region]")
		return
	}
	t := calc.Household
	if kind := strings.ToLower(args[0]); kind == "economy" || kind == "societywide" {
		t = calc.SocietyWide
	}
	arg := ""
	if len(args) > 2 {
		arg = args[2]
	}
	req := r.request(t, args[1], arg)
	h, err := r.orch.StartCalculation(ctx, req)
	if err != nil {
		fmt.Fprintf(r.out, "%sError: %v%s\n", ui.ColorRed(), err, ui.ColorReset())
		return
	}
	r.remember(h.CalcID())
	fmt.Fprintf(r.out, "Started %s%s%s in the background.\n", ui.ColorCyan(), h.CalcID(), ui.ColorReset())
}

func (r *REPL) cmdStatus(args []string) {
	if len(args) == 0 {
		r.usage("status <id>")
		return
	}
	st, ok := r.orch.Store().Get(status.KeyOf(r.config.Template.TargetType, args[0]))
	if !ok {
		fmt.Fprintf(r.out, "%sNo status for %s.%s\n", ui.ColorYellow(), args[0], ui.ColorReset())
		return
	}
	fmt.Fprintf(r.out, "  %s%s%s: %s", ui.ColorCyan(), args[0], ui.ColorReset(), describe(st))
	fmt.Fprintln(r.out)
}

func describe(st calc.Status) string {
	s := fmt.Sprintf("%s %.0f%%", st.State, st.ProgressValue())
	if st.QueuePosition != nil {
		s += fmt.Sprintf(", queue position %d", *st.QueuePosition)
	}
	if st.Message != "" {
		s += ", " + st.Message
	}
	if st.Error != nil {
		s += fmt.Sprintf(", %s: %s", st.Error.Code, st.Error.Message)
	}
	return s
}

func (r *REPL) cmdList() {
	running := r.orch.Running()
	sort.Strings(running)
	fmt.Fprintf(r.out, "\n%sCalculations:%s\n", ui.ColorBold(), ui.ColorReset())
	if len(r.ids) == 0 {
		fmt.Fprintln(r.out, "  none")
	}
	for _, id := range r.ids {
		marker := "  "
		if r.orch.IsRunning(id) {
			marker = ui.ColorGreen() + "► " + ui.ColorReset()
		}
		line := "no status"
		if st, ok := r.orch.Store().Get(status.KeyOf(r.config.Template.TargetType, id)); ok {
			line = describe(st)
		}
		fmt.Fprintf(r.out, "%s%s%-10s%s %s\n", marker, ui.ColorYellow(), id, ui.ColorReset(), line)
	}
	fmt.Fprintf(r.out, "%d running.\n\n", len(running))
}

func (r *REPL) cmdConfig() {
	t := r.config.Template
	fmt.Fprintf(r.out, "\n%sSession defaults:%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(r.out, "  Country:   %s%s%s\n", ui.ColorCyan(), t.CountryID, ui.ColorReset())
	fmt.Fprintf(r.out, "  Baseline:  %s%s%s\n", ui.ColorCyan(), t.PolicyIDs.Baseline, ui.ColorReset())
	fmt.Fprintf(r.out, "  Reform:    %s%s%s\n", ui.ColorCyan(), t.PolicyIDs.Reform, ui.ColorReset())
	fmt.Fprintf(r.out, "  Year:      %s%s%s\n", ui.ColorCyan(), t.Year, ui.ColorReset())
	fmt.Fprintf(r.out, "  Target:    %s%s%s\n", ui.ColorCyan(), t.TargetType, ui.ColorReset())
	fmt.Fprintf(r.out, "  Timeout:   %s%s%s\n", ui.ColorCyan(), r.config.Timeout, ui.ColorReset())
	fmt.Fprintf(r.out, "  Regions:   %s%d%s\n\n", ui.ColorCyan(), len(r.config.Units), ui.ColorReset())
}
