package bootstrap

import (
	"context"

	"github.com/najoast/dining/config"
	"github.com/najoast/dining/metrics"
	"github.com/najoast/dining/philosopher"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// Service names
const (
	ServiceMetrics = "metrics-server"
	ServiceWatcher = "config-watcher"
	ServiceDinner  = "dinner"
)

// DinnerService runs a dinner in the background between Start and Stop
type DinnerService struct {
	dinner *philosopher.Dinner

	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started atomic.Bool
}

// NewDinnerService wraps dinner as a managed service
func NewDinnerService(dinner *philosopher.Dinner) *DinnerService {
	return &DinnerService{
		dinner: dinner,
		done:   make(chan struct{}),
	}
}

// Name implements Service
func (s *DinnerService) Name() string {
	return ServiceDinner
}

// Start launches the dinner. The start context only bounds the launch, the
// dinner itself runs until it completes or Stop is called.
func (s *DinnerService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return philosopher.ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.err = s.dinner.Run(runCtx)
	}()
	return nil
}

// Stop interrupts the dinner and waits for every philosopher to leave
func (s *DinnerService) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "waiting for philosophers")
	}
}

// Health implements Service
func (s *DinnerService) Health(ctx context.Context) (HealthStatus, error) {
	meals := make([]int64, 0, len(s.dinner.Philosophers()))
	for _, p := range s.dinner.Philosophers() {
		meals = append(meals, p.Meals())
	}
	data := map[string]interface{}{"meals": meals, "min_meals": s.dinner.MinMeals()}

	switch {
	case !s.started.Load():
		return HealthStatus{State: HealthStarting, Message: "waiting to start", Data: data}, nil
	case s.finished():
		return HealthStatus{State: HealthStopped, Message: "dinner is over", Data: data}, nil
	default:
		return HealthStatus{State: HealthHealthy, Message: "dinner in progress", Data: data}, nil
	}
}

// Done is closed once the dinner returned
func (s *DinnerService) Done() <-chan struct{} {
	return s.done
}

// Err returns the dinner result, valid after Done is closed
func (s *DinnerService) Err() error {
	return s.err
}

func (s *DinnerService) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// MetricsService serves the metrics registry over HTTP
type MetricsService struct {
	server *metrics.Server
}

// NewMetricsService wraps server as a managed service
func NewMetricsService(server *metrics.Server) *MetricsService {
	return &MetricsService{server: server}
}

// Name implements Service
func (s *MetricsService) Name() string {
	return ServiceMetrics
}

// Start implements Service
func (s *MetricsService) Start(ctx context.Context) error {
	return s.server.Start()
}

// Stop implements Service
func (s *MetricsService) Stop(ctx context.Context) error {
	return s.server.Stop(ctx)
}

// Health implements Service
func (s *MetricsService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{
		State:   HealthHealthy,
		Message: "serving metrics",
		Data:    map[string]interface{}{"addr": s.server.Addr()},
	}, nil
}

// WatcherService keeps a config.Watcher running
type WatcherService struct {
	watcher *config.Watcher
}

// NewWatcherService wraps watcher as a managed service
func NewWatcherService(watcher *config.Watcher) *WatcherService {
	return &WatcherService{watcher: watcher}
}

// Name implements Service
func (s *WatcherService) Name() string {
	return ServiceWatcher
}

// Start implements Service
func (s *WatcherService) Start(ctx context.Context) error {
	return s.watcher.Start()
}

// Stop implements Service
func (s *WatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

// Health implements Service
func (s *WatcherService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy, Message: "watching configuration"}, nil
}
