// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package buildcache

import (
	"fmt"
	"os"
	"os/exec"
)

// RunArtifact executes a cached task binary with the project root as
// working directory, exporting it to the child. When capture is true,
// stdout/stderr are returned in the Result; otherwise the child
// inherits the caller's stdio.
//
// A non-zero child exit is a Result, not an error; an error means the
// binary could not be spawned at all.
func RunArtifact(binaryPath, projectRoot string, args []string, capture bool) (Result, error) {
	command := exec.Command(binaryPath, args...)
	command.Dir = projectRoot
	command.Env = append(os.Environ(), ProjectRootEnv+"="+projectRoot)
	return runCommand(command, capture, fmt.Sprintf("task binary %s", binaryPath))
}
