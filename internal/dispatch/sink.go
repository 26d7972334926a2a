package dispatch

// Sink is the transport-level streaming response the caller's framework
// provides. Send emits one frame; more=false terminates the stream and is
// emitted exactly once per dispatch, even on failure or empty output. A Send
// error means the caller is gone and no further frames should be attempted.
type Sink interface {
	Send(p []byte, more bool) error
}
