package gpio

// FakeSwitch is a test double for a relay line.
type FakeSwitch struct {
	// On is the current logical state.
	On bool

	// Sets records every value passed to Set.
	Sets []bool

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read.
	ReadError error

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakeSwitch creates a FakeSwitch in the given state.
func NewFakeSwitch(on bool) *FakeSwitch {
	return &FakeSwitch{On: on}
}

// Read returns the current state.
func (f *FakeSwitch) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.On, nil
}

// Set records and applies the state.
func (f *FakeSwitch) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Sets = append(f.Sets, on)
	f.On = on
	return nil
}

// Close marks the switch as closed.
func (f *FakeSwitch) Close() error {
	f.Closed = true
	return nil
}
