// Package tracker bounds update retries per target version across restarts.
//
// The attempt table holds at most one record. Moving to a different target
// discards the previous record, so counting always restarts at one.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/repository/kv"
)

// ErrUpdateCancelled wraps persistence failures that abort the update cycle.
var ErrUpdateCancelled = errors.New("update cancelled")

// Notifier delivers update outcomes.
type Notifier interface {
	Send(ctx context.Context, status, oldVersion, newVersion string) error
}

// Tracker is the persisted attempt state machine.
type Tracker struct {
	store       kv.Store
	notifier    Notifier
	maxAttempts int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxAttempts overrides the attempt cap.
func WithMaxAttempts(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.maxAttempts = limit
		}
	}
}

// New creates a tracker persisting into store.
func New(store kv.Store, notifier Notifier, opts ...Option) *Tracker {
	t := &Tracker{
		store:       store,
		notifier:    notifier,
		maxAttempts: config.DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// RecordAttempt registers one more try to move from oldVersion to newVersion
// and reports whether the try may proceed.
func (t *Tracker) RecordAttempt(ctx context.Context, oldVersion, newVersion string) (bool, error) {
	ctx = logger.WithFields(ctx, "from", oldVersion, "to", newVersion)

	records, err := t.load(ctx)
	if err != nil {
		return false, cancelled(err)
	}

	key := release.AttemptKey{Target: newVersion}

	current, ok := records[key.ID()]
	if !ok {
		if err = t.restart(ctx, oldVersion, newVersion); err != nil {
			return false, cancelled(err)
		}

		return true, nil
	}

	switch {
	case !current.Exhausted(t.maxAttempts):
		next := current
		next.Attempts++
		next.Notified = false

		if err = t.replace(ctx, current, next); err != nil {
			return false, cancelled(err)
		}

		logger.InfoKV(ctx, "Update attempt recorded", "attempt", next.Attempts, "max", t.maxAttempts)

		return true, nil
	case !current.Notified:
		return false, t.notifyExhausted(ctx, current)
	default:
		logger.DebugKV(ctx, "Update attempts exhausted", "attempts", current.Attempts)

		return false, nil
	}
}

// Lookup returns the record targeting version, if any.
func (t *Tracker) Lookup(ctx context.Context, version string) (release.AttemptRecord, bool, error) {
	records, err := t.load(ctx)
	if err != nil {
		return release.AttemptRecord{}, false, err
	}

	record, ok := records[release.AttemptKey{Target: version}.ID()]

	return record, ok, nil
}

// Clear removes every attempt record.
func (t *Tracker) Clear(ctx context.Context) error {
	if err := t.store.Clear(ctx, release.AttemptsTable); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}

	return nil
}

func (t *Tracker) restart(ctx context.Context, oldVersion, newVersion string) error {
	if err := t.Clear(ctx); err != nil {
		return err
	}

	record := release.AttemptRecord{
		From:     oldVersion,
		To:       newVersion,
		Attempts: 1,
	}

	value, err := encode(record)
	if err != nil {
		return err
	}

	if err = t.store.Set(ctx, storeKey(record), value); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}

	logger.InfoKV(ctx, "Update attempt recorded", "attempt", record.Attempts, "max", t.maxAttempts)

	return nil
}

func (t *Tracker) notifyExhausted(ctx context.Context, record release.AttemptRecord) error {
	logger.WarnKV(ctx, "Update attempts exhausted, reporting failure", "attempts", record.Attempts)

	if t.notifier != nil {
		if err := t.notifier.Send(ctx, release.OutcomeFailed, record.From, record.To); err != nil {
			return fmt.Errorf("report failed update: %w", err)
		}
	}

	next := record
	next.Notified = true

	if err := t.replace(ctx, record, next); err != nil {
		return cancelled(err)
	}

	return nil
}

func (t *Tracker) replace(ctx context.Context, current, next release.AttemptRecord) error {
	expected, err := encode(current)
	if err != nil {
		return err
	}

	value, err := encode(next)
	if err != nil {
		return err
	}

	if err = t.store.CompareAndReplace(ctx, storeKey(next), expected, value); err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}

	return nil
}

func (t *Tracker) load(ctx context.Context) (map[string]release.AttemptRecord, error) {
	raw, err := t.store.GetAll(ctx, release.AttemptsTable)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}

	records := make(map[string]release.AttemptRecord, len(raw))

	for id, value := range raw {
		var record release.AttemptRecord
		if err = yaml.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", id, err)
		}

		records[id] = record
	}

	return records, nil
}

func storeKey(record release.AttemptRecord) kv.Key {
	return kv.Key{
		Table: release.AttemptsTable,
		ID:    record.Key().ID(),
	}
}

func encode(record release.AttemptRecord) ([]byte, error) {
	value, err := yaml.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode attempt: %w", err)
	}

	return value, nil
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrUpdateCancelled, err)
}
