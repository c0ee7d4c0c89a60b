//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {}

// terminate falls back to the strongest available signal; processes on this
// platform cannot be interrupted individually.
func terminate(cmd *exec.Cmd) error {
	if err := cmd.Process.Signal(os.Interrupt); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
