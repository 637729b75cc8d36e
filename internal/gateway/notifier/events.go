package notifier

import (
	"fmt"
	"time"

	"bracken/internal/logger"
)

// Events renders lifecycle events into StructuredMessages and pushes them
// fire-and-forget. Delivery failures are logged, never propagated.
type Events struct {
	sink TextNotifier
}

func NewEvents(sink TextNotifier) *Events {
	if sink == nil {
		sink = Nop{}
	}
	return &Events{sink: sink}
}

func (e *Events) send(msg StructuredMessage) {
	msg.Timestamp = time.Now()
	go func() {
		if err := e.sink.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("notify %q failed: %v", msg.Title, err)
		}
	}()
}

func (e *Events) EntryOpened(symbol, chainID string, direction string, legALot, legBLot float64) {
	e.send(StructuredMessage{
		Icon:  "📈",
		Title: "Entry Opened",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("direction: %s", direction),
				fmt.Sprintf("leg A lot: %.2f", legALot),
				fmt.Sprintf("leg B lot: %.2f", legBLot),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) LegFailed(symbol, chainID, leg string, err error) {
	e.send(StructuredMessage{
		Icon:  "⚠️",
		Title: "Leg Failed",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("leg: %s", leg),
				fmt.Sprintf("chain: %s", chainID),
				fmt.Sprintf("error: %v", err),
			},
		}},
	})
}

func (e *Events) ProfitBooked(symbol, chainID string, level int, amount, total string) {
	e.send(StructuredMessage{
		Icon:  "💰",
		Title: "Profit Booked",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("level: %d", level),
				fmt.Sprintf("amount: $%s", amount),
				fmt.Sprintf("total booked: $%s", total),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) PyramidCompleted(symbol, chainID string, total string) {
	e.send(StructuredMessage{
		Icon:  "🏁",
		Title: "Pyramid Completed",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("total booked: $%s", total),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) RecoveryStarted(symbol, chainID string, deadline time.Time) {
	e.send(StructuredMessage{
		Icon:  "⏳",
		Title: "Recovery Window Opened",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("deadline: %s", deadline.Format("15:04:05 MST")),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) RecoveryExecuted(symbol, chainID, ticket string, attempt int) {
	e.send(StructuredMessage{
		Icon:  "🔄",
		Title: "Recovery Re-entry",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("ticket: %s", ticket),
				fmt.Sprintf("attempt: %d", attempt),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) RecoveryExpired(symbol, chainID string) {
	e.send(StructuredMessage{
		Icon:  "⌛",
		Title: "Recovery Window Expired",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) ContinuationOpened(symbol, chainID, kind, ticket string, level int) {
	e.send(StructuredMessage{
		Icon:  "➡️",
		Title: "Continuation Opened",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("kind: %s", kind),
				fmt.Sprintf("ticket: %s", ticket),
				fmt.Sprintf("level: %d", level),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) ChainStopped(symbol, chainID, reason string) {
	e.send(StructuredMessage{
		Icon:  "🛑",
		Title: "Chain Stopped",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("symbol: %s", symbol),
				fmt.Sprintf("reason: %s", reason),
				fmt.Sprintf("chain: %s", chainID),
			},
		}},
	})
}

func (e *Events) Critical(title string, lines ...string) {
	e.send(StructuredMessage{
		Icon:     "🚨",
		Title:    title,
		Sections: []MessageSection{{Lines: lines}},
	})
}
