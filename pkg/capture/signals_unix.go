//go:build unix

package capture

import (
	"os"
	"syscall"
)

func suspend(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func resume(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}

func interrupt(p *os.Process) error {
	return p.Signal(os.Interrupt)
}
