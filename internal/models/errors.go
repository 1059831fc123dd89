package models

import "errors"

var (
	// ErrViewOffsetExceedsDuration is returned by MetadataItem.Validate when
	// a resume offset is past the known duration of the item.
	ErrViewOffsetExceedsDuration = errors.New("models: view offset exceeds duration")
)
