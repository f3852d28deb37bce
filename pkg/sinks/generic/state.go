package generic

// ConnectionState tracks a sink's lazily established external resource.
// Connections move Unconnected → Connecting → Open on the first delivery, and
// reach Closed through destroy or an observed failure. Closed is terminal: a
// dropped resource is never reopened on the same sink instance, so every
// delivery after it fails.
type ConnectionState int

const (
	Unconnected ConnectionState = iota
	Connecting
	Open
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}

	return "unknown"
}
