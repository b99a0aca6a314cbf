package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/choreboard/choreboard/jobs"
	_ "github.com/choreboard/choreboard/testing"
)

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return 3, f.err
}

type fakeRoller struct {
	horizon time.Time
}

func (f *fakeRoller) RolloverDue(ctx context.Context, horizon time.Time) (int64, error) {
	f.horizon = horizon
	return 2, nil
}

func TestSessionPurgeHandler(t *testing.T) {
	purger := &fakePurger{}
	handler := jobs.NewSessionPurgeHandler(purger, nil)

	task, err := jobs.NewSessionPurgeTask(jobs.SessionPurgePayload{Grace: 24 * time.Hour})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := time.Now().Add(-24 * time.Hour)
	if diff := purger.cutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v not near %v", purger.cutoff, want)
	}
}

func TestSessionPurgeHandlerPropagatesError(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	handler := jobs.NewSessionPurgeHandler(purger, nil)

	task, err := jobs.NewSessionPurgeTask(jobs.SessionPurgePayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err == nil {
		t.Fatal("expected error so asynq retries the task")
	}
}

func TestRolloverHandlerDefaultsHorizon(t *testing.T) {
	roller := &fakeRoller{}
	handler := jobs.NewRolloverHandler(roller, nil)

	task, err := jobs.NewRolloverTask(jobs.RolloverPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	if roller.horizon.Year() != tomorrow.Year() || roller.horizon.YearDay() != tomorrow.YearDay() {
		t.Fatalf("horizon %v is not tomorrow", roller.horizon)
	}
	if h, m, s := roller.horizon.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("horizon %v not at midnight", roller.horizon)
	}
}

func TestRolloverHandlerExplicitHorizon(t *testing.T) {
	roller := &fakeRoller{}
	handler := jobs.NewRolloverHandler(roller, nil)

	want := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	task, err := jobs.NewRolloverTask(jobs.RolloverPayload{Horizon: want})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !roller.horizon.Equal(want) {
		t.Fatalf("horizon %v, want %v", roller.horizon, want)
	}
}
