package watcher

// Lifecycle is a forward-only state machine fed with filtered events. Each
// network progresses on its own, since streams of different networks reach
// the processing loop in no particular order.
type Lifecycle interface {
	// Advance moves the network of ev to the stage of ev and reports whether
	// it changed. Events that would move that network backwards are ignored.
	Advance(ev Event) bool
	Terminal() bool
	// Stage is the furthest stage reached on any network.
	Stage() string
}

type channelStage int

const (
	channelIdle channelStage = iota
	channelInit
	channelOpenTry
	channelOpenAck
	channelOpenConfirm
	channelClosed
)

var channelStageNames = map[channelStage]string{
	channelIdle:        "Idle",
	channelInit:        "Init",
	channelOpenTry:     "OpenTry",
	channelOpenAck:     "OpenAck",
	channelOpenConfirm: "OpenConfirm",
	channelClosed:      "Closed",
}

// ChannelLifecycle follows Init, OpenTry, OpenAck and OpenConfirm. A close
// confirmation ends the handshake from any stage before OpenConfirm.
type ChannelLifecycle struct {
	stages map[string]channelStage
	stage  channelStage
}

func NewChannelLifecycle() *ChannelLifecycle {
	return &ChannelLifecycle{stages: make(map[string]channelStage)}
}

func (l *ChannelLifecycle) set(network string, next channelStage) {
	l.stages[network] = next
	l.stage = max(l.stage, next)
}

func (l *ChannelLifecycle) Advance(ev Event) bool {
	if l.Terminal() {
		return false
	}

	var next channelStage
	switch ev.Name {
	case EventChannelOpenInit:
		next = channelInit
	case EventChannelOpenTry:
		next = channelOpenTry
	case EventChannelOpenAck:
		next = channelOpenAck
	case EventChannelOpenConfirm:
		next = channelOpenConfirm
	case EventChannelCloseConfirm:
		l.set(ev.Network, channelClosed)
		return true
	default:
		return false
	}

	if next <= l.stages[ev.Network] {
		return false
	}
	l.set(ev.Network, next)
	return true
}

func (l *ChannelLifecycle) Terminal() bool {
	return l.stage == channelOpenConfirm || l.stage == channelClosed
}

func (l *ChannelLifecycle) Stage() string {
	return channelStageNames[l.stage]
}

// Closed reports whether the handshake ended with a close instead of a confirm.
func (l *ChannelLifecycle) Closed() bool {
	return l.stage == channelClosed
}

type packetStage int

const (
	packetIdle packetStage = iota
	packetSent
	packetReceived
	packetAckWritten
	packetAcknowledged
)

var packetStageNames = map[packetStage]string{
	packetIdle:         "Idle",
	packetSent:         "Sent",
	packetReceived:     "Received",
	packetAckWritten:   "AckWritten",
	packetAcknowledged: "Acknowledged",
}

// PacketLifecycle follows Sent, Received, AckWritten and Acknowledged.
type PacketLifecycle struct {
	stages map[string]packetStage
	stage  packetStage
}

func NewPacketLifecycle() *PacketLifecycle {
	return &PacketLifecycle{stages: make(map[string]packetStage)}
}

func (l *PacketLifecycle) Advance(ev Event) bool {
	var next packetStage
	switch ev.Name {
	case EventSendPacket:
		next = packetSent
	case EventRecvPacket:
		next = packetReceived
	case EventWriteAckPacket:
		next = packetAckWritten
	case EventAcknowledgement:
		next = packetAcknowledged
	default:
		return false
	}

	if next <= l.stages[ev.Network] {
		return false
	}
	l.stages[ev.Network] = next
	l.stage = max(l.stage, next)
	return true
}

func (l *PacketLifecycle) Terminal() bool {
	return l.stage == packetAcknowledged
}

func (l *PacketLifecycle) Stage() string {
	return packetStageNames[l.stage]
}
