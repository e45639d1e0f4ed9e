// Package gpio exposes relay GPIO lines as switch datapoints.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Switch reads and drives a single relay line.
type Switch interface {
	// Read returns the logical state of the line (true = on).
	Read() (bool, error)

	// Set drives the line to the given logical state.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip used when none is configured.
const DefaultChip = "gpiochip0"
