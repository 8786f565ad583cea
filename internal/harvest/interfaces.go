package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves one URL's body with retry applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BinaryFetcher downloads url to dest, validating the declared content type
// and the file's leading magic bytes before installing it at dest. A failed
// validation leaves nothing at dest.
type BinaryFetcher interface {
	FetchBinary(ctx context.Context, url, dest string, magic []byte, contentType string) error
}

// DocketParser extracts case groups from one fetched docket index page.
// A structurally absent section yields an empty slice and a nil error; that
// is the normal "nothing published" outcome, not a failure.
type DocketParser interface {
	Parse(unit WorkUnit, page []byte) ([]CaseGroup, error)
}

// Merger concatenates the pages of the input PDFs, in order, into output.
type Merger interface {
	Merge(inputs []string, output string) error
}

// Pauser is the pacing dependency of the coordinator and assembler.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Limiter caps the request rate against the remote host. Pacer implements it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Hasher computes digests for artifact integrity records.
type Hasher interface {
	Hash(data []byte) (string, error)
	HashFile(path string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
