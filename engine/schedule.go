package engine

import (
	"context"
)

type Scheduler interface {
	Schedule(ctx context.Context)
	Push(ctx context.Context, jobs ...*Job) error
	Pull(ctx context.Context) (*Job, error)
}

// Schedule hands jobs to workers, prioritised jobs first and each lane in
// arrival order.
type Schedule struct {
	requestCh   chan *Job
	workerCh    chan *Job
	priReqQueue []*Job
	reqQueue    []*Job
}

func NewSchedule() *Schedule {
	return &Schedule{
		requestCh: make(chan *Job),
		workerCh:  make(chan *Job),
	}
}

func (s *Schedule) Push(ctx context.Context, jobs ...*Job) error {
	for _, j := range jobs {
		select {
		case s.requestCh <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Schedule) Pull(ctx context.Context) (*Job, error) {
	select {
	case j := <-s.workerCh:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Schedule) Schedule(ctx context.Context) {
	var ch chan *Job

	var job *Job

	for {
		if job == nil && len(s.priReqQueue) > 0 {
			job = s.priReqQueue[0]
			s.priReqQueue = s.priReqQueue[1:]
			ch = s.workerCh
		}

		if job == nil && len(s.reqQueue) > 0 {
			job = s.reqQueue[0]
			s.reqQueue = s.reqQueue[1:]
			ch = s.workerCh
		}

		select {
		case j := <-s.requestCh:
			if j.Priority > 0 {
				s.priReqQueue = append(s.priReqQueue, j)
			} else {
				s.reqQueue = append(s.reqQueue, j)
			}
		case ch <- job:
			job = nil
			ch = nil
		case <-ctx.Done():
			return
		}
	}
}
