package transfer

// Observer receives session and command events, e.g. for metrics.
type Observer interface {
	SessionOpened()
	SessionClosed()
	CommandHandled(command, result string)
	BytesTransferred(direction string, n int64)
	ChecksumMismatch(checkpoint string)
}

// Checksum checkpoints.
const (
	CheckpointPostReceive = "post_receive"
	CheckpointPreTransfer = "pre_transfer"
)

// Payload directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

type nopObserver struct{}

func (nopObserver) SessionOpened()                 {}
func (nopObserver) SessionClosed()                 {}
func (nopObserver) CommandHandled(string, string)  {}
func (nopObserver) BytesTransferred(string, int64) {}
func (nopObserver) ChecksumMismatch(string)        {}
