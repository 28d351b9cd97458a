// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"errors"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
)

// MultiSink fans every sample out to several sinks. It is ready only when all
// of them are, and every sink is written and finished even if another fails.
type MultiSink struct {
	sinks []internal_type.Sink
}

func NewMultiSink(sinks ...internal_type.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) IsReadyForMoreData() bool {
	for _, s := range m.sinks {
		if !s.IsReadyForMoreData() {
			return false
		}
	}
	return true
}

func (m *MultiSink) Write(sample internal_type.Sample) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) MarkFinished() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.MarkFinished(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
