//go:build !robotgo

package device

import (
	"errors"

	logx "cadencebot/pkg/logx"
)

func openRobotgo(cfg Config, log logx.Logger) (Device, error) {
	_ = cfg
	_ = log
	return nil, errors.New("robotgo driver not built; rebuild with -tags robotgo")
}
