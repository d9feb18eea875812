package orchestrator

import (
	"context"
	"errors"

	"waypoint/internal/database"
	"waypoint/internal/models"
)

// interruptedMessage is recorded on actions whose execution was cut short
// by a restart.
const interruptedMessage = "interrupted during execution"

// RecoveryReport counts what Recover did.
type RecoveryReport struct {
	Classified  int `json:"classified"`
	Executed    int `json:"executed"`
	Interrupted int `json:"interrupted"`
}

// Recover finishes lifecycles a previous process left half done. Actions
// stuck before a decision are advanced, approved actions that were never
// claimed are executed, and claimed actions with no outcome are marked
// failed without running their handler again.
func (o *Orchestrator) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	tick := o.currentTick()

	for _, st := range []models.ActionStatus{models.StatusProposed, models.StatusAutoApproved, models.StatusApproved} {
		stuck, err := o.store.ListActions(ctx, database.ActionFilter{Status: st, Oldest: true})
		if err != nil {
			return rep, err
		}
		for i := range stuck {
			if err := o.recoverOne(ctx, &stuck[i], tick, &rep); err != nil {
				return rep, err
			}
		}
	}

	if rep != (RecoveryReport{}) {
		o.logger.Info("recovered unfinished actions",
			"classified", rep.Classified, "executed", rep.Executed, "interrupted", rep.Interrupted)
	}
	return rep, nil
}

func (o *Orchestrator) recoverOne(ctx context.Context, a *models.Action, tick int64, rep *RecoveryReport) error {
	unlock := o.actionLocks.Lock(a.ActionID)
	defer unlock()

	cur, err := o.store.GetAction(ctx, a.ActionID)
	if err != nil {
		return err
	}
	sys := database.Transition{Actor: models.DecidedBySystem, DecidedBy: models.DecidedBySystem, Tick: tick}

	switch cur.Status {
	case models.StatusProposed:
		rep.Classified++
		_, err = o.advance(ctx, cur, tick)
		return err
	case models.StatusAutoApproved:
		approved, err := o.transition(ctx, cur, models.StatusApproved, sys)
		if err != nil {
			return err
		}
		cur = approved
	case models.StatusApproved:
	default:
		return nil
	}

	if cur.ClaimedAt != nil {
		rep.Interrupted++
		_, err := o.transition(ctx, cur, models.StatusExecutionFailed,
			database.Transition{Actor: models.DecidedBySystem, Tick: tick, Error: interruptedMessage})
		return err
	}

	rep.Executed++
	_, err = o.execute(ctx, cur, tick)
	if errors.Is(err, ErrExecutionFailed) {
		return nil
	}
	return err
}
