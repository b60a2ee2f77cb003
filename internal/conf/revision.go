package conf

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// RevisionField is the configuration key that holds the source revision.
const RevisionField = "git_rev"

// NoRevision is recorded when no revision can be determined.
const NoRevision = "none"

// RevisionFunc returns the current source-control revision.
type RevisionFunc func() (string, error)

// GitRevision returns a RevisionFunc that reports the HEAD commit of the git
// repository containing dir. An empty dir means the working directory.
func GitRevision(dir string) RevisionFunc {
	return func() (string, error) {
		cmd := exec.Command("git", "rev-parse", "--verify", "HEAD")
		cmd.Dir = dir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return "", fmt.Errorf("%w: %s", errRevisionUnavailable, msg)
		}

		rev := strings.TrimSpace(stdout.String())
		if rev == "" {
			return "", errRevisionUnavailable
		}
		return rev, nil
	}
}
