// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
)

type Summary struct {
	ID     string
	Tracks []internal_track.Summary
}

func (s *Summary) Track(kind internal_type.TrackKind) (internal_track.Summary, bool) {
	for _, t := range s.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return internal_track.Summary{}, false
}
