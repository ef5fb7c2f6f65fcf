// Package audio defines the types and device abstractions for the Susurrus
// audio pipeline.
//
// The two primary abstractions are:
//
//   - [Source] — a live capture device that pushes fixed-size [Frame] values
//     into a caller-supplied callback, once per frame, from a dedicated
//     real-time goroutine.
//   - [Sink] — a playback device that accepts scheduled [Buffer] values and
//     plays them back-to-back without gaps, notifying per-buffer completion.
//
// Neither interface performs business logic; both are thin adapters whose
// only failure mode is device unavailability. Implementations live in
// adapter subpackages (e.g. audio/wavfile for file-backed streams, audio/mock
// for tests). The interfaces are intentionally narrow so the detector and
// playback pipeline stay decoupled from device details.
//
// This package lives under pkg/ because external code (third-party device
// adapters) is expected to implement [Source] and [Sink].
package audio

// Source is a push-style capture device. The callback passed to Start is
// invoked once per frame on a dedicated goroutine standing in for the
// device's real-time thread; it must not block, and it must copy any sample
// data it wants to keep.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start opens the device and begins delivering frames to cb. It returns
	// an error if the device cannot be opened. Calling Start while the
	// source is already running is an error.
	Start(cb func(Frame)) error

	// Stop halts frame delivery and releases the device. After Stop returns
	// no further callbacks are invoked. Stop is idempotent.
	Stop() error

	// Format reports the device's native stream format. A degenerate format
	// (zero rate or channels) means the device is unusable; callers should
	// check [Format.Valid] before Start.
	Format() Format
}

// Sink is a playback device with an internal queue. Buffers enqueued while a
// previous buffer is still playing are scheduled back-to-back so the output
// stream has no gaps.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Enqueue schedules buf for playback and returns without waiting for it
	// to play. onComplete is invoked exactly once when playback of this
	// specific buffer finishes — or, after [Sink.Stop], when the buffer is
	// discarded. The completion callback may fire on the sink's playback
	// goroutine; it must be short and non-blocking.
	//
	// Enqueue returns an error only if the device has failed.
	Enqueue(buf Buffer, onComplete func()) error

	// Stop hard-stops playback, discarding queued buffers. Completion
	// callbacks for all discarded buffers still fire, so upstream capacity
	// accounting is never leaked. The sink stays usable for subsequent
	// Enqueue calls. Stop is idempotent.
	Stop() error

	// Format reports the sink's native stream format.
	Format() Format
}
