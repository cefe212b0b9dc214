package targets

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamerjackson/leadcrawler/spider"
	"go.uber.org/zap"
)

type SyncOptions struct {
	// Update overwrites targets that already exist by name.
	Update bool
	// DisableMissing disables stored targets absent from the file.
	DisableMissing bool
	DryRun         bool
	Logger         *zap.Logger
}

type Action string

const (
	Created  Action = "created"
	Updated  Action = "updated"
	Skipped  Action = "skipped"
	Disabled Action = "disabled"
	Invalid  Action = "invalid"
)

type Change struct {
	Name   string
	Action Action
	Err    error
}

type Report struct {
	DryRun  bool
	Changes []Change
}

func (r *Report) Count(a Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == a {
			n++
		}
	}
	return n
}

func (r *Report) add(name string, a Action, err error) {
	r.Changes = append(r.Changes, Change{Name: name, Action: a, Err: err})
}

// Sync reconciles the stored targets with entries. Invalid entries are
// reported and skipped; the error is set only when the repository fails.
func Sync(ctx context.Context, repo spider.TargetRepository, entries []Entry, opts SyncOptions) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rep := &Report{DryRun: opts.DryRun}
	seen := make(map[string]bool)

	for _, e := range entries {
		t, err := e.Target()
		if err == nil && t.Name == "" {
			err = fmt.Errorf("%w: missing name", spider.ErrInvalidTarget)
		}
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			logger.Warn("skip invalid target", zap.String("name", e.Name), zap.Error(err))
			rep.add(e.Name, Invalid, err)
			if e.Name != "" {
				seen[e.Name] = true
			}
			continue
		}
		seen[t.Name] = true

		_, err = repo.GetTargetByName(ctx, t.Name)
		exists := err == nil
		if err != nil && !errors.Is(err, spider.ErrNotFound) {
			return rep, err
		}

		switch {
		case exists && !opts.Update:
			rep.add(t.Name, Skipped, nil)
			continue
		case opts.DryRun && exists:
			rep.add(t.Name, Updated, nil)
			continue
		case opts.DryRun:
			rep.add(t.Name, Created, nil)
			continue
		}

		created, err := repo.SaveTarget(ctx, t)
		if err != nil {
			return rep, err
		}
		if created {
			rep.add(t.Name, Created, nil)
		} else {
			rep.add(t.Name, Updated, nil)
		}
		logger.Info("target synced", zap.String("name", t.Name), zap.Bool("created", created))
	}

	if opts.DisableMissing {
		stored, err := repo.ListTargets(ctx, true)
		if err != nil {
			return rep, err
		}
		for _, t := range stored {
			if seen[t.Name] {
				continue
			}
			if !opts.DryRun {
				if err := repo.SetEnabled(ctx, t.Name, false); err != nil {
					return rep, err
				}
				logger.Info("target disabled", zap.String("name", t.Name))
			}
			rep.add(t.Name, Disabled, nil)
		}
	}

	return rep, nil
}
