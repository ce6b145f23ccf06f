// Package player abstracts the media element driven by the sync
// engine. A browser embedder backs it with a <video> element or the
// YouTube iframe API; tests and headless sessions use Virtual.
package player

// Player is the minimal control surface the sync engine needs. All
// positions are seconds from the start of the media.
type Player interface {
	Play()
	Pause()
	SeekTo(seconds float64)
	CurrentTime() float64
	Duration() float64
	Playing() bool
}
