// Package sink saves fetched media. It is the command-line stand-in for a
// browser's save-as action.
package sink

import (
	"context"
	"io"
)

// Sink stores one named file and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}
