package workers

import (
	"afterglow/events"
	"afterglow/host/headless"
	"afterglow/observability"
	"afterglow/runtime"
	"afterglow/view"
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// ScriptWorker drives a headless application from a line oriented script:
//
//	go <path>            navigate (no path means the empty route)
//	click <id>           click the node with that id
//	input <id> <value>   fire an input event carrying value
//	back | forward       move through the history
//	wait <duration>      pause, e.g. "wait 50ms"
//	expect <text>        check the mounted tree shows text
//	show | routes | stats | history
//	quit
//
// Lines starting with # are comments.
type ScriptWorker struct {
	log      *slog.Logger
	in       io.Reader
	out      io.Writer
	router   *runtime.Router
	host     *headless.Host
	history  *headless.History
	monitor  *observability.Monitor
	mountID  string
	colours  bool
	settle   time.Duration
	onFinish func()
	failures atomic.Int64
}

func NewScriptWorker(log *slog.Logger, in io.Reader, out io.Writer, router *runtime.Router,
	host *headless.Host, history *headless.History, monitor *observability.Monitor, mountID string) *ScriptWorker {
	return &ScriptWorker{
		log:     log,
		in:      in,
		out:     out,
		router:  router,
		host:    host,
		history: history,
		monitor: monitor,
		mountID: mountID,
		settle:  2 * time.Second,
	}
}

func (w *ScriptWorker) WithColours(enabled bool) *ScriptWorker {
	w.colours = enabled
	return w
}

// WithSettle bounds how long expect waits for the tree to show the text.
func (w *ScriptWorker) WithSettle(d time.Duration) *ScriptWorker {
	w.settle = d
	return w
}

// OnFinish registers fn to run once the script ended or quit.
func (w *ScriptWorker) OnFinish(fn func()) *ScriptWorker {
	w.onFinish = fn
	return w
}

// Failures counts the expectations that did not hold.
func (w *ScriptWorker) Failures() int64 {
	return w.failures.Load()
}

func (w *ScriptWorker) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(w.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			w.log.Warn("Script input failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				w.finish()
				return nil
			}
			quit, err := w.exec(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(w.out, "error: %v\n", err)
			}
			if quit {
				w.finish()
				return nil
			}
		}
	}
}

func (w *ScriptWorker) finish() {
	if w.onFinish != nil {
		w.onFinish()
	}
}

func (w *ScriptWorker) exec(ctx context.Context, line string) (bool, error) {
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	w.log.Debug("Script command", "cmd", cmd, "arg", arg)

	switch cmd {
	case "go":
		return false, w.router.Navigate(arg)
	case "click":
		return false, w.fire(arg, view.Event{Type: "click"})
	case "input":
		id, value, _ := strings.Cut(arg, " ")
		return false, w.fire(id, view.Event{Type: "input", Value: value})
	case "back":
		if !w.history.Back() {
			fmt.Fprintln(w.out, "history: nothing behind")
		}
	case "forward":
		if !w.history.Forward() {
			fmt.Fprintln(w.out, "history: nothing ahead")
		}
	case "wait":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return false, err
		}
		return false, events.Sleep(ctx, d)
	case "expect":
		w.expect(ctx, arg)
	case "show":
		w.show()
	case "routes":
		w.routes()
	case "stats":
		w.stats()
	case "history":
		w.historyTable()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

func (w *ScriptWorker) element() (*headless.Element, error) {
	el, ok := w.host.Element(w.mountID)
	if !ok {
		return nil, fmt.Errorf("no element %q", w.mountID)
	}
	return el, nil
}

func (w *ScriptWorker) fire(id string, ev view.Event) error {
	el, err := w.element()
	if err != nil {
		return err
	}
	if !el.Fire(id, ev) {
		return fmt.Errorf("no %s handler on %q", ev.Type, id)
	}
	return nil
}

func (w *ScriptWorker) expect(ctx context.Context, text string) {
	deadline := time.Now().Add(w.settle)
	for {
		if el, err := w.element(); err == nil && strings.Contains(el.Text(), text) {
			fmt.Fprintln(w.out, w.paint(color.FgGreen, "ok   "+strconv.Quote(text)))
			return
		}
		if time.Now().After(deadline) || events.Sleep(ctx, 5*time.Millisecond) != nil {
			w.failures.Add(1)
			got := ""
			if el, err := w.element(); err == nil {
				got = el.Text()
			}
			fmt.Fprintln(w.out, w.paint(color.FgRed, fmt.Sprintf("FAIL %q, tree shows %q", text, got)))
			return
		}
	}
}

func (w *ScriptWorker) show() {
	path, _, _ := w.router.Current()
	fmt.Fprintln(w.out, w.header(fmt.Sprintf("/%s", path)))
	if el, err := w.element(); err == nil {
		fmt.Fprintln(w.out, el.HTML())
	}
}

func (w *ScriptWorker) routes() {
	current, _, mounted := w.router.Current()
	table := w.newTable([]string{"Path", "Mounted"})
	for _, p := range w.router.Paths() {
		mark := ""
		if mounted && p == current {
			mark = "*"
		}
		table.Append([]string{"/" + p, mark})
	}
	fmt.Fprintln(w.out, w.header("routes"))
	table.Render()
}

func (w *ScriptWorker) stats() {
	s := w.monitor.GetLatest()
	table := w.newTable([]string{"Metric", "Value"})
	rows := [][]string{
		{"messages applied", strconv.FormatUint(s.MessagesApplied, 10)},
		{"avg message (µs)", strconv.FormatFloat(s.AvgMessageMicros, 'f', 1, 64)},
		{"render requests", strconv.FormatUint(s.RenderRequests, 10)},
		{"render passes", strconv.FormatUint(s.RenderPasses, 10)},
		{"render failures", strconv.FormatUint(s.RenderFailures, 10)},
		{"mounts", strconv.FormatUint(s.Mounts, 10)},
		{"ejects", strconv.FormatUint(s.Ejects, 10)},
		{"route switches", strconv.FormatUint(s.RouteSwitches, 10)},
		{"route misses", strconv.FormatUint(s.RouteMisses, 10)},
		{"goroutines", strconv.Itoa(s.Goroutines)},
		{"rss (MB)", strconv.FormatUint(s.RSSMb, 10)},
	}
	table.AppendBulk(rows)
	fmt.Fprintln(w.out, w.header("stats"))
	table.Render()
}

func (w *ScriptWorker) historyTable() {
	current, hasCurrent := w.history.Current()
	table := w.newTable([]string{"Seq", "URL", "At", "Current"})
	for _, e := range w.history.Entries() {
		mark := ""
		if hasCurrent && e.Seq == current.Seq {
			mark = "*"
		}
		table.Append([]string{strconv.FormatUint(e.Seq, 10), "/" + e.URL, e.At.Format("15:04:05"), mark})
	}
	fmt.Fprintln(w.out, w.header("history"))
	table.Render()
}

func (w *ScriptWorker) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func (w *ScriptWorker) header(title string) string {
	h := fmt.Sprintf("  ====== %s ======", title)
	if w.colours {
		return color.New(color.BgBlack, color.FgGreen).Render(h)
	}
	return h
}

func (w *ScriptWorker) paint(c color.Color, s string) string {
	if !w.colours {
		return s
	}
	return c.Render(s)
}
