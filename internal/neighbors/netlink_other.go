//go:build !linux

package neighbors

import "context"

func dumpTable(context.Context) ([]entry, error) {
	return nil, ErrUnsupported
}
