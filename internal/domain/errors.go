package domain

import "errors"

var (
	// ErrInvalidMode signals a search mode outside active|sold|both.
	ErrInvalidMode = errors.New("mode must be active|sold|both")
	// ErrInvalidImage signals a non-image or empty upload.
	ErrInvalidImage = errors.New("invalid image upload")
	// ErrBadCollaboratorResponse signals a malformed query-generation response.
	ErrBadCollaboratorResponse = errors.New("bad query generation response")
	// ErrCollaboratorUnavailable signals a query-generation transport failure.
	ErrCollaboratorUnavailable = errors.New("query generation unavailable")
	// ErrMarketplaceTimeout signals a marketplace search timeout.
	ErrMarketplaceTimeout = errors.New("marketplace search timeout")
	// ErrMarketplaceHTTP signals a marketplace search HTTP failure.
	ErrMarketplaceHTTP = errors.New("marketplace search http error")
	// ErrEmbeddingBackend signals an embedding backend failure at batch level.
	ErrEmbeddingBackend = errors.New("embedding backend error")
)
