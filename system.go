package ewcs

import (
	"os/exec"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// execSystemControl drives the host clock and power through the usual
// system utilities. Requires root on the station image.
type execSystemControl struct{}

func NewSystemControl() SystemControl {
	return &execSystemControl{}
}

func (s *execSystemControl) SetClock(t time.Time) error {
	stamp := t.UTC().Format("2006-01-02 15:04:05")
	log.WithField("time", stamp).Info("setting system clock")
	out, err := exec.Command("date", "-u", "-s", stamp).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "unable to set clock: %s", out)
	}
	return nil
}

func (s *execSystemControl) Shutdown() error {
	log.Warn("shutting down host")
	out, err := exec.Command("shutdown", "-h", "now").CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "unable to shut down: %s", out)
	}
	return nil
}
