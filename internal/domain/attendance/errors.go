package attendance

import "errors"

var (
	ErrUnknownClassification = errors.New("unknown attendance classification")
)
