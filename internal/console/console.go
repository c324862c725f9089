// Package console is the operator REPL (SPEC_FULL.md §4.13): a read-only
// inspection shell over the running agent's in-memory state. It never
// mutates anything — no order placement, no re-arming — only Ring Bus
// stats, Symbol Engine snapshots, and Order State Machine snapshots.
// Grounded on fixclient/repl.go's chzyer/readline command-loop shape,
// narrowed from that REPL's order-entry/RFQ command surface to pure
// inspection since this agent's order flow is fully automatic.
package console

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"limitup-agent/internal/bus"
	"limitup-agent/internal/orderstate"
	"limitup-agent/internal/symbol"
)

// Inspector is the read-only surface the console depends on.
type Inspector struct {
	Bus     *bus.Ring
	Symbols *symbol.Registry
	Orders  *orderstate.Registry
}

// Run starts the REPL and blocks until the user exits or input closes.
// historyPath mirrors fixclient/repl.go's HistoryFile convention.
func Run(insp Inspector, historyPath string) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("bus"),
		readline.PcItem("symbol"),
		readline.PcItem("orders"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agent> ",
		HistoryFile:     historyPath,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Println("console disabled: failed to start readline:", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "bus":
			printBusStats(insp.Bus)
		case "symbol":
			if len(parts) < 2 {
				fmt.Println("Usage: symbol <NNNNNN.SH|NNNNNN.SZ>")
				continue
			}
			printSymbolSnapshot(insp.Symbols, strings.ToUpper(parts[1]))
		case "orders":
			printOrderSnapshots(insp.Orders)
		case "help":
			printHelp()
		case "exit":
			return
		default:
			fmt.Println("Unknown command. Type 'help' for available commands.")
		}
	}
}

func printHelp() {
	fmt.Print(`Commands:
  bus               - Ring Bus throughput stats (pushed/dropped/filtered/depth)
  symbol <symbol>   - Symbol Engine signal state for one symbol
  orders            - Order State Machine snapshot for every tracked symbol
  help              - this message
  exit              - leave the console
`)
}

func printBusStats(ring *bus.Ring) {
	stats := ring.SnapshotStats()
	fmt.Printf("pushed=%d dropped=%d (order=%d transaction=%d market=%d) filtered=%d depth=%d/%d max_enqueue_ns=%d max_dwell_ns=%d last_stats_emit_ns=%d\n",
		stats.Pushed, stats.Dropped,
		stats.DroppedByType[bus.DataOrder], stats.DroppedByType[bus.DataTransaction], stats.DroppedByType[bus.DataMarket],
		stats.Filtered, ring.Depth(), ring.Capacity(), stats.MaxEnqueueNs, stats.MaxDwellNs, stats.LastStatsEmitNs)
}

func printSymbolSnapshot(symbols *symbol.Registry, sym string) {
	s := symbols.Snapshot(sym)
	fmt.Printf("%-12s limit_up=%d base=%d base_ready=%v sealed=%v sum=%d flag_order=%d sum_trigger_count=%d price107=%v\n",
		s.Symbol, s.LimitUpRaw, s.BaseRaw, s.BaseReady, s.Sealed, s.SumRaw, s.FlagOrder, s.SumTriggerCount, s.Price107Triggered)
}

func printOrderSnapshots(orders *orderstate.Registry) {
	snaps := orders.Snapshots()
	if len(snaps) == 0 {
		fmt.Println("no tracked symbols")
		return
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
	for _, s := range snaps {
		fmt.Printf("%-12s phase=%-16s seq=%d active=%d pending=%d to_cancel=%d cancel_attempts=%d stop_after_done=%v suppressed=%d\n",
			s.Symbol, s.Phase.String(), s.Seq, s.ActiveSysID, s.PendingSysID, s.ToCancelSysID, s.CancelAttempts, s.StopAfterDone, s.SuppressedWhileBusy)
	}
}
