package ui

import (
	"github.com/charmbracelet/log"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

// LogObserver reports scheduler events as log lines. It is used when
// stdout is not a terminal.
type LogObserver struct {
	logger *log.Logger
}

var _ apppublish.Observer = (*LogObserver)(nil)

// NewLogObserver creates an observer writing through logger.
func NewLogObserver(logger *log.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithPrefix("publish")}
}

func (o *LogObserver) OnStageChange(pkg string, stage domain.Stage) {
	switch stage {
	case domain.StageFailed:
		o.logger.Error("package failed", "package", pkg)
	case domain.StageBlocked:
		o.logger.Warn("package blocked", "package", pkg)
	case domain.StageRetrying:
		o.logger.Warn("retrying stage", "package", pkg)
	case domain.StagePublished:
		o.logger.Info("package published", "package", pkg)
	case domain.StageSkipped:
		o.logger.Debug("package skipped", "package", pkg)
	default:
		o.logger.Debug("stage", "package", pkg, "stage", stage)
	}
}

func (o *LogObserver) OnError(pkg string, message string) {
	o.logger.Error(message, "package", pkg)
}

func (o *LogObserver) OnLevelStart(level int, pkgs []string) {
	o.logger.Info("starting level", "level", level, "packages", pkgs)
}

func (o *LogObserver) OnSchedulerStateChange(state domain.SchedulerState) {
	o.logger.Warn("scheduler state changed", "state", state)
}

func (o *LogObserver) OnComplete() {
	o.logger.Debug("publish complete")
}
