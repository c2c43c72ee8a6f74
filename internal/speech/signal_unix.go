//go:build unix

package speech

import (
	"os"

	"golang.org/x/sys/unix"
)

func stopProcess(p *os.Process) error {
	return p.Signal(unix.SIGSTOP)
}

func continueProcess(p *os.Process) error {
	return p.Signal(unix.SIGCONT)
}
