package watcher

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
)

// Printer renders events that passed the filter.
type Printer interface {
	Print(ev Event)
}

type banner struct {
	title   string
	waiting string
}

var banners = map[string]banner{
	EventChannelOpenInit:     {"🙋‍♀️   CHANNEL OPEN INIT !!!   🙋‍♀️", "channel open try"},
	EventChannelOpenTry:      {"🙋‍♂️   CHANNEL OPEN TRY !!!   🙋‍♂️", "channel open ack"},
	EventChannelOpenAck:      {"👩‍❤️‍💋‍👨   CHANNEL OPEN ACK !!!   👩‍❤️‍💋‍👨", "channel open confirm"},
	EventChannelOpenConfirm:  {"🤵‍♂️💍👰‍♀️   CHANNEL OPEN CONFIRM !!!   👰‍♀️💍🤵‍♂️", "channel creation overview"},
	EventChannelCloseConfirm: {"🔗 🔒   IBC CHANNEL CLOSED !!!   🔗 🔒", ""},
	EventSendPacket:          {"📦 📮   PACKET HAS BEEN SENT !!!   📦 📮", "packet receipt"},
	EventRecvPacket:          {"📦 📬   PACKET IS RECEIVED !!!   📦 📬", "write acknowledgement"},
	EventWriteAckPacket:      {"📦 📝   ACKNOWLEDGEMENT WRITTEN !!!   📦 📝", "acknowledgement"},
	EventAcknowledgement:     {"📦 🏁   PACKET IS ACKNOWLEDGED !!!   📦 🏁", ""},
}

const rule = "-------------------------------------------"

// HumanPrinter writes an emoji banner per event followed by its fields and
// an explorer link.
type HumanPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	explorers map[string]string
}

// NewHumanPrinter takes the explorer base URL of each network.
func NewHumanPrinter(w io.Writer, explorers map[string]string) *HumanPrinter {
	return &HumanPrinter{w: w, explorers: explorers}
}

// TxURL builds the explorer link of a transaction on network.
func TxURL(explorer, txHash string) string {
	if explorer == "" {
		return ""
	}
	if !strings.HasSuffix(explorer, "/") {
		explorer += "/"
	}
	return explorer + "tx/" + txHash
}

func (p *HumanPrinter) Print(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := banners[ev.Name]
	if !ok {
		b = banner{title: ev.Name}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n%s\n%s\n", rule, text.Colors{text.Bold}.Sprint(b.title), rule)
	fmt.Fprintf(&sb, "🔔 Event name: %s\n", ev.Name)
	fmt.Fprintf(&sb, "⛓️  Network: %s\n", ev.Network)
	fmt.Fprintf(&sb, "🔗 Port Address: %s\n", ev.PortAddress.Hex())
	if ev.ChannelID != "" {
		fmt.Fprintf(&sb, "🛣️  Channel ID: %s\n", ev.ChannelID)
	}
	if ev.CounterpartyPortID != "" {
		fmt.Fprintf(&sb, "🔗 Counterparty Port ID: %s\n", ev.CounterpartyPortID)
	}
	if ev.CounterpartyChannelID != "" {
		fmt.Fprintf(&sb, "🛣️  Counterparty Channel ID: %s\n", ev.CounterpartyChannelID)
	}
	if len(ev.ConnectionHops) > 0 {
		fmt.Fprintf(&sb, "🦘 Connection Hops: %s\n", strings.Join(ev.ConnectionHops, ","))
	}
	if ev.Version != "" {
		fmt.Fprintf(&sb, "🔀 Ordering: %d\n", ev.Ordering)
		fmt.Fprintf(&sb, "💰 Fee Enabled: %t\n", ev.FeeEnabled)
		fmt.Fprintf(&sb, "#️⃣ Version: %s\n", ev.Version)
	}
	if ev.Sequence != 0 {
		fmt.Fprintf(&sb, "📈 Sequence: %d\n", ev.Sequence)
	}
	if ev.TimeoutTimestamp != 0 {
		fmt.Fprintf(&sb, "⏳ Timeout Timestamp: %d\n", ev.TimeoutTimestamp)
	}
	if ev.AckSuccess != nil {
		fmt.Fprintf(&sb, "✅ Ack Success: %t\n", *ev.AckSuccess)
	}
	fmt.Fprintf(&sb, "%s\n🧾 TxHash: %s\n", rule, ev.TxHash.Hex())
	if url := TxURL(p.explorers[ev.Network], ev.TxHash.Hex()); url != "" {
		fmt.Fprintf(&sb, "🔍 Explorer URL: %s\n", url)
	}
	fmt.Fprintf(&sb, "%s\n", rule)
	if b.waiting != "" {
		fmt.Fprintf(&sb, " ⏱️  Waiting for %s...\n", b.waiting)
	}

	_, _ = io.WriteString(p.w, sb.String())
}

// Emitter writes one structured record.
type Emitter interface {
	Emit(v any) error
}

// StructuredPrinter hands every event to an emitter, one record per event.
type StructuredPrinter struct {
	mu      sync.Mutex
	emitter Emitter
}

func NewStructuredPrinter(emitter Emitter) *StructuredPrinter {
	return &StructuredPrinter{emitter: emitter}
}

func (p *StructuredPrinter) Print(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.emitter.Emit(ev)
}

// RecordingPrinter keeps printed events in order. Commands use it to report
// the ids the handshake produced.
type RecordingPrinter struct {
	next   Printer
	mu     sync.Mutex
	events []Event
}

func NewRecordingPrinter(next Printer) *RecordingPrinter {
	return &RecordingPrinter{next: next}
}

func (p *RecordingPrinter) Print(ev Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()

	if p.next != nil {
		p.next.Print(ev)
	}
}

func (p *RecordingPrinter) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Event(nil), p.events...)
}
