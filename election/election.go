// Package election decides which scheduler node dispatches work.
package election

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

type Leader interface {
	IsLeader() bool
}

// Always is the leader of a single-node deployment.
type Always struct{}

func (Always) IsLeader() bool { return true }

func Dial(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// Elector campaigns for leadership through an etcd election.
type Elector struct {
	ID    string
	cli   *clientv3.Client
	ready int32
	// campaigning is set from the start of a campaign until its result is
	// received.
	campaigning int32
	options
}

type campaigner interface {
	Campaign(ctx context.Context, val string) error
}

func New(cli *clientv3.Client, id string, opts ...Option) *Elector {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Elector{ID: id, cli: cli, options: options}
}

func (e *Elector) IsLeader() bool {
	return atomic.LoadInt32(&e.ready) != 0
}

// Campaign blocks until ctx is done, holding or waiting for leadership. On
// return the node has resigned.
func (e *Elector) Campaign(ctx context.Context) error {
	s, err := concurrency.NewSession(e.cli, concurrency.WithTTL(e.ttl))
	if err != nil {
		return fmt.Errorf("election session: %w", err)
	}
	defer s.Close()

	el := concurrency.NewElection(s, e.prefix)
	leaderCh := make(chan error, 1)
	atomic.StoreInt32(&e.campaigning, 0)
	e.startElect(ctx, el, leaderCh)
	leaderChange := el.Observe(ctx)

	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if e.IsLeader() {
				atomic.StoreInt32(&e.ready, 0)
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := el.Resign(rctx); err != nil {
					e.logger.Warn("resign failed", zap.Error(err))
				}
				cancel()
			}
			return nil
		case err := <-leaderCh:
			atomic.StoreInt32(&e.campaigning, 0)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				e.logger.Error("leader elect failed", zap.Error(err))
				e.startElect(ctx, el, leaderCh)
				continue
			}
			e.logger.Info("became leader", zap.String("id", e.ID))
			atomic.StoreInt32(&e.ready, 1)
		case resp, ok := <-leaderChange:
			if !ok {
				leaderChange = nil
				continue
			}
			if len(resp.Kvs) > 0 {
				e.logger.Info("watch leader change", zap.String("leader", string(resp.Kvs[0].Value)))
			}
		case <-s.Done():
			e.logger.Warn("election session expired")
			atomic.StoreInt32(&e.ready, 0)
			return errors.New("election session expired")
		case <-ticker.C:
			rsp, err := el.Leader(ctx)
			if err != nil {
				e.logger.Info("get leader failed", zap.Error(err))
				if errors.Is(err, concurrency.ErrElectionNoLeader) && !e.IsLeader() {
					e.startElect(ctx, el, leaderCh)
				}
				continue
			}
			if len(rsp.Kvs) > 0 && e.IsLeader() && e.ID != string(rsp.Kvs[0].Value) {
				e.logger.Warn("leadership lost", zap.String("leader", string(rsp.Kvs[0].Value)))
				atomic.StoreInt32(&e.ready, 0)
				e.startElect(ctx, el, leaderCh)
			}
		}
	}
}

// startElect runs one campaign in the background unless one is already in
// flight. It reports whether a campaign was started.
func (e *Elector) startElect(ctx context.Context, el campaigner, ch chan<- error) bool {
	if !atomic.CompareAndSwapInt32(&e.campaigning, 0, 1) {
		return false
	}
	go e.elect(ctx, el, ch)
	return true
}

func (e *Elector) elect(ctx context.Context, el campaigner, ch chan<- error) {
	// blocks until elected
	err := el.Campaign(ctx, e.ID)
	select {
	case ch <- err:
	case <-ctx.Done():
	}
}

func (e *Elector) Close() error {
	return e.cli.Close()
}

// NodeID names this process in elections.
func NodeID(ip string) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("leadcrawler-%s-%s-%d", host, ip, os.Getpid())
}

// LocalIP returns the first non-loopback IPv4 address.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", errors.New("no local ip")
}
