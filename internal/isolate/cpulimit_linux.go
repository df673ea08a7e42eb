package isolate

import "golang.org/x/sys/unix"

// setCPULimit lowers RLIMIT_CPU of an already running process. The soft
// limit delivers SIGXCPU, the hard limit one second later SIGKILL.
func setCPULimit(pid int, sec int64) error {
	lim := &unix.Rlimit{Cur: uint64(sec), Max: uint64(sec + 1)}
	return unix.Prlimit(pid, unix.RLIMIT_CPU, lim, nil)
}
