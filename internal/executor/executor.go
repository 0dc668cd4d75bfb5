// Package executor runs external commands. The interface exists so the
// build orchestration can be tested without invoking a real toolchain.
package executor

import (
	"context"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

type Executor interface {
	// Run executes name with args, inheriting the process environment
	// extended with extraEnv ("KEY=value" entries). A nonzero exit status
	// is returned as an *exec.ExitError.
	Run(ctx context.Context, name string, args []string, extraEnv []string) error
}

type OS struct {
	log *logrus.Logger
}

func NewOS(log *logrus.Logger) *OS {
	return &OS{log: log}
}

func (e *OS) Run(ctx context.Context, name string, args []string, extraEnv []string) error {
	e.log.Infof("running %s %v", name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
