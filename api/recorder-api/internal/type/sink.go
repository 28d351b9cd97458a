// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

// Sink is the encoder/container input consuming the accepted samples of one
// track. Write and IsReadyForMoreData must not block the capture goroutine.
type Sink interface {
	// IsReadyForMoreData reports whether Write would currently accept a sample.
	IsReadyForMoreData() bool

	// Write consumes one sample whose timestamp is already pause-corrected.
	Write(sample Sample) error

	// MarkFinished closes the track input. Calling it twice is a no-op.
	MarkFinished() error
}
