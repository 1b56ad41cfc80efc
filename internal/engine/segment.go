package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/model"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// runSegment executes the chain starting at from until it reaches boundary
// (the join closing the enclosing region, exclusive) or the flow's end.
// Parallel regions encountered on the way are run whole, join included,
// before the walk continues past them.
func (e *Engine) runSegment(ctx context.Context, rs *runState, sc *stepContext, from, boundary string) error {
	current := from
	for current != "" && current != boundary {
		step, ok := rs.graph.Lookup(current)
		if !ok {
			return fmt.Errorf("step %q not found in graph", current)
		}

		switch step.Kind {
		case flow.Split, flow.Foreach:
			next, err := e.runRegion(ctx, rs, sc, step)
			if err != nil {
				return err
			}
			current = next
		case flow.Join:
			// Joins execute inside runRegion; a validated graph never
			// routes a segment onto one.
			return fmt.Errorf("step %q: join reached outside its region", current)
		default:
			if err := e.runStep(ctx, rs, sc, step); err != nil {
				return err
			}
			current = firstSuccessor(step)
		}
	}
	return nil
}

func firstSuccessor(step *flow.Step) string {
	if len(step.Next) == 0 {
		return ""
	}
	return step.Next[0]
}

// runStep executes one step body on the given context, records the outcome,
// and persists the artifacts the step produced.
func (e *Engine) runStep(ctx context.Context, rs *runState, sc *stepContext, step *flow.Step) error {
	if err := ctx.Err(); err != nil {
		return mlerrors.NewStepError(step.Name, sc.path.String(), err)
	}

	if e.workers != nil {
		select {
		case e.workers <- struct{}{}:
			defer func() { <-e.workers }()
		case <-ctx.Done():
			return mlerrors.NewStepError(step.Name, sc.path.String(), ctx.Err())
		}
	}

	sc.step = step.Name
	sc.note = ""
	sc.artifacts.BeginStep()

	started := time.Now()
	e.emit(rs, model.StepResult{Step: step.Name, Branch: sc.path, Status: model.StatusRunning, StartedAt: started})

	log := sc.Logger()
	log.Debug("step started")

	invoke := func(ctx context.Context) error {
		return step.Body.Run(ctx, sc)
	}

	var err error
	if e.intercept != nil {
		err = e.intercept(ctx, step.Name, sc.path, invoke)
	} else {
		err = invoke(ctx)
	}

	result := model.StepResult{
		Step:      step.Name,
		Branch:    sc.path,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	if err != nil {
		stepErr := mlerrors.NewStepError(step.Name, sc.path.String(), err)
		result.Status = model.StatusFailed
		result.Err = stepErr
		result.Message = err.Error()
		rs.record(result)
		e.emit(rs, result)
		log.Error(err, "step failed")
		return stepErr
	}

	for _, name := range sc.artifacts.Written() {
		value, _ := sc.artifacts.Get(name)
		if putErr := e.store.Put(rs.runID, sc.path, step.Name, name, value); putErr != nil {
			return mlerrors.NewStepError(step.Name, sc.path.String(), putErr)
		}
	}

	result.Status = model.StatusSucceeded
	result.Message = "completed"
	if sc.note != "" {
		result.Message = sc.note
	}
	rs.record(result)
	e.emit(rs, result)
	log.Debug("step completed")
	return nil
}
