package concurrency

import (
	"os"
	"syscall"
)

// FDUsage reports the process's current open file descriptor count and
// its soft RLIMIT_NOFILE. Either value is -1 if it could not be
// determined (non-Linux /proc absence, permission failure).
type FDUsage struct {
	Open  int
	Limit int
}

// HeadroomPct returns the fraction of the FD limit still unused, or -1
// if usage could not be determined.
func (u FDUsage) HeadroomPct() float64 {
	if u.Open < 0 || u.Limit <= 0 {
		return -1
	}
	return float64(u.Limit-u.Open) / float64(u.Limit)
}

// ReadFDUsage inspects /proc/self/fd (Linux) and RLIMIT_NOFILE to compute
// current descriptor pressure. Used by the FD-health worker to catch an
// EMFILE cascade before it makes the server unreachable.
func ReadFDUsage() FDUsage {
	usage := FDUsage{Open: -1, Limit: -1}

	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err == nil {
		usage.Limit = int(rlimit.Cur)
	}

	entries, err := os.ReadDir("/proc/self/fd")
	if err == nil {
		usage.Open = len(entries)
	}

	return usage
}
