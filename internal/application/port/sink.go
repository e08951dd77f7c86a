package port

type Sink interface {
	// Frame: replace whatever was drawn before with this frame
	WriteFrame(frame string) error
	// Normal newline (for logs)
	NewLine() error
}
