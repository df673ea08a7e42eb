//go:build !linux

package isolate

import "errors"

func setCPULimit(pid int, sec int64) error {
	return errors.ErrUnsupported
}
