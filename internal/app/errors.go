package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyDocument     = errors.New("document has no text to index")
	ErrNoChunks          = errors.New("no chunks found for retrieval")
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
	ErrUnauthorized      = errors.New("invalid username or password")
)
