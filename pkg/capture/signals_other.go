//go:build !unix

package capture

import (
	"errors"
	"os"
)

func suspend(*os.Process) error {
	return errors.ErrUnsupported
}

func resume(*os.Process) error {
	return errors.ErrUnsupported
}

func interrupt(p *os.Process) error {
	return p.Kill()
}
