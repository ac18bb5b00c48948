package merge

import (
	"bytes"
	"context"
	"os/exec"
)

// runShell runs cmd through the shell in dir, returning whether it exited
// zero and its combined stdout+stderr.
func runShell(ctx context.Context, dir, cmd string) (bool, string, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir

	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	err := c.Run()
	if err == nil {
		return true, out.String(), nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, out.String(), nil
	}
	return false, out.String(), err
}
