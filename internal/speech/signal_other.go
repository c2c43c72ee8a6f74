//go:build !unix

package speech

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing speech is not supported on this platform")

func stopProcess(*os.Process) error { return errPauseUnsupported }

func continueProcess(*os.Process) error { return errPauseUnsupported }
