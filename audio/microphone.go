package audio

import "context"

// Microphone checks that a capture device can be opened. Acquire opens the
// device, starts it and releases it again, so a later capture by the
// recognizer finds the permission already granted.
type Microphone struct {
	ctx    Context
	device *DeviceInfo
}

func NewMicrophone(ctx Context, device *DeviceInfo) *Microphone {
	return &Microphone{ctx: ctx, device: device}
}

// Acquire returns nil when the device is usable, an error wrapping
// ErrPermissionDenied when access is refused, and a *DeviceError otherwise.
func (m *Microphone) Acquire(ctx context.Context) error {
	capture, err := m.ctx.NewCapture(m.device, DefaultCaptureConfig())
	if err != nil {
		return Classify(m.device.String(), err)
	}
	started := make(chan error, 1)
	go func() { started <- capture.Start() }()

	select {
	case err := <-started:
		if err != nil {
			capture.Close()
			return Classify(m.device.String(), err)
		}
		capture.Stop()
		capture.Close()
		return nil
	case <-ctx.Done():
		// Start may still succeed later; stop it once it returns.
		go func() {
			if <-started == nil {
				capture.Stop()
			}
			capture.Close()
		}()
		return ctx.Err()
	}
}
