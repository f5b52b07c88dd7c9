// Package reconcile periodically finishes application decisions that an
// interrupted run left half applied.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"crewline/internal/engine"
	"crewline/internal/status"
)

type Worker struct {
	Engine   engine.Engine
	Schedule string
	Logger   logrus.FieldLogger

	mu      sync.Mutex
	running bool
}

type Summary struct {
	Checked  int                      `json:"checked"`
	Repaired []engine.ReconcileResult `json:"repaired"`
	Issues   []engine.ReconcileResult `json:"issues"`
	Failed   int                      `json:"failed"`
}

func (w *Worker) log() logrus.FieldLogger {
	if w.Logger != nil {
		return w.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Start schedules RunOnce on the cron spec and stops the scheduler when ctx ends.
func (w *Worker) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.Schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log().WithError(err).Warn("reconcile pass failed")
		}
	}); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", w.Schedule, err)
	}
	c.Start()
	w.log().WithField("schedule", w.Schedule).Info("reconciler started")
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// ErrBusy is returned when a pass is already running.
var ErrBusy = errors.New("reconcile pass already running")

// RunOnce reconciles every assigned project. A failure on one project is
// counted and logged; the pass continues with the rest.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return Summary{}, ErrBusy
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	projects, err := w.Engine.ListProjects(ctx, engine.ProjectFilter{Status: status.Assigned})
	if err != nil {
		return Summary{}, fmt.Errorf("list assigned projects: %w", err)
	}
	sum := Summary{Repaired: []engine.ReconcileResult{}, Issues: []engine.ReconcileResult{}}
	for _, p := range projects {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		res, err := w.Engine.Reconcile(ctx, p.ID)
		if err != nil {
			sum.Failed++
			w.log().WithField("project_id", p.ID).WithError(err).Warn("reconcile project failed")
			continue
		}
		if res.Issue != "" {
			sum.Issues = append(sum.Issues, res)
		}
		if len(res.Steps) > 0 {
			sum.Repaired = append(sum.Repaired, res)
		}
	}
	w.log().WithFields(logrus.Fields{
		"checked":  sum.Checked,
		"repaired": len(sum.Repaired),
		"failed":   sum.Failed,
	}).Info("reconcile pass finished")
	return sum, nil
}
