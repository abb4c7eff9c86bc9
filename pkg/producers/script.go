package producers

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
)

// Script drives the producer fleet through shell scripts, run with
// `/bin/bash -e` from Dir:
//
//	scale-producers.sh N    scale to N producers
//	get-producers-count.sh  print the running producer count
type Script struct {
	Dir         string
	ScaleScript string
	CountScript string
	// Attempts bounds retries of the count script.
	Attempts uint
	Delay    time.Duration
}

func NewScript(dir string) *Script {
	return &Script{
		Dir:         dir,
		ScaleScript: "./scale-producers.sh",
		CountScript: "./get-producers-count.sh",
		Attempts:    3,
		Delay:       200 * time.Millisecond,
	}
}

func (s *Script) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/bash", append([]string{"-e"}, args...)...)
	cmd.Dir = s.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", errors.Wrapf(err, "%s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", errors.Wrapf(err, "running %s", args[0])
	}
	return string(out), nil
}

func (s *Script) ScaleProducers(ctx context.Context, count int) error {
	_, err := s.run(ctx, s.ScaleScript, strconv.Itoa(count))
	return err
}

func (s *Script) ProducerCount(ctx context.Context) (int, error) {
	var count int
	err := retry.Do(
		func() error {
			out, err := s.run(ctx, s.CountScript)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(strings.TrimSpace(out))
			if err != nil {
				return errors.Wrapf(err, "parsing output of %s", s.CountScript)
			}
			count = n
			return nil
		},
		retry.Attempts(s.Attempts),
		retry.Delay(s.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return 0, err
	}
	return count, nil
}
