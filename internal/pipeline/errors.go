package pipeline

import "logcore/pkg/errors"

func stageBusyError(stageName string) error {
	return errors.StageBusy("stage settings may only change while detached").WithIdentifier(stageName)
}
