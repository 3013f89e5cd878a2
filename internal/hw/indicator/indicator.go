package indicator

// Indicator is what the vision controller drives to show its state.
// It may be backed by a GPIO LED or by nothing at all.
type Indicator interface {
	// On shows that sampling is running.
	On() error
	// Toggle flips the light once per captured frame (heartbeat).
	Toggle() error
	// Off shows that sampling is stopped.
	Off() error
}
