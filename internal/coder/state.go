package coder

// State is a coder lifecycle state.
type State int32

const (
	StateInited State = iota
	StateOpened
	StateFlushing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateOpened:
		return "opened"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// Direction selects the encode or decode variant of a Coder.
type Direction int

const (
	DirectionEncode Direction = iota
	DirectionDecode
)

func (d Direction) String() string {
	if d == DirectionDecode {
		return "decoder"
	}
	return "encoder"
}

// SendOutcome is the flow-control result of Coder.Send.
type SendOutcome int

const (
	// SendAccepted means the unit was consumed.
	SendAccepted SendOutcome = iota
	// SendAwaitingDrain means the unit was consumed but the codec is full;
	// call Receive before the next Send.
	SendAwaitingDrain
	// SendEndOfStream means no more input will be accepted.
	SendEndOfStream
)

func (o SendOutcome) String() string {
	switch o {
	case SendAccepted:
		return "accepted"
	case SendAwaitingDrain:
		return "awaiting_drain"
	case SendEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// ReceiveOutcome is the flow-control result of Coder.Receive.
type ReceiveOutcome int

const (
	// ReceiveProduced means the output unit now holds a complete unit.
	ReceiveProduced ReceiveOutcome = iota
	// ReceiveAwaitingInput means nothing is ready; Send more input.
	ReceiveAwaitingInput
	// ReceiveEndOfStream means the flush finished and nothing more will be
	// produced.
	ReceiveEndOfStream
)

func (o ReceiveOutcome) String() string {
	switch o {
	case ReceiveProduced:
		return "produced"
	case ReceiveAwaitingInput:
		return "awaiting_input"
	case ReceiveEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}
