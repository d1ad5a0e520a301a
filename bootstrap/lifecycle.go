package bootstrap

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Lifecycle errors
var (
	ErrAlreadyStarted     = errors.New("lifecycle manager already started")
	ErrDuplicateService   = errors.New("service already registered")
	ErrUnknownDependency  = errors.New("dependency is not registered")
	ErrCircularDependency = errors.New("circular dependency detected")
)

const defaultServiceTimeout = 30 * time.Second

// DefaultLifecycleManager implements the LifecycleManager interface
type DefaultLifecycleManager struct {
	// services holds all registered services
	services map[string]Service

	// dependencies tracks service dependencies
	dependencies map[string][]string

	// startOrder tracks the order services were started
	startOrder []string

	mutex   sync.RWMutex
	started bool

	// eventChan buffers lifecycle events, dropping them when full
	eventChan chan LifecycleEvent
	listeners []func(LifecycleEvent)

	// timeout for a single Start or Stop call
	timeout time.Duration
	logger  *zap.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager() *DefaultLifecycleManager {
	return &DefaultLifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      defaultServiceTimeout,
		logger:       log.L(),
	}
}

// Register registers a service under its name
func (lm *DefaultLifecycleManager) Register(service Service, deps ...string) error {
	if service == nil {
		return errors.New("service cannot be nil")
	}
	name := service.Name()
	if name == "" {
		return errors.New("service name cannot be empty")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return errors.Annotatef(ErrAlreadyStarted, "register %s", name)
	}
	if _, exists := lm.services[name]; exists {
		return errors.Annotate(ErrDuplicateService, name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.broadcastEvent(LifecycleEvent{Type: EventServiceRegistered, Service: name})
	return nil
}

// Start starts all services in dependency order. When a service fails to
// start, the services already started are stopped again.
func (lm *DefaultLifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return ErrAlreadyStarted
	}

	startOrder, err := lm.calculateStartOrder()
	if err != nil {
		return errors.Annotate(err, "failed to calculate start order")
	}
	lm.logger.Debug("starting services", zap.Strings("order", startOrder))

	for _, name := range startOrder {
		service := lm.services[name]
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarting, Service: name})

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStartFailed, Service: name, Error: err})
			lm.logger.Warn("service failed to start", zap.String("service", name), zap.Error(err))
			lm.stopStarted(ctx)
			return &ServiceError{Operation: "start", Service: name, Err: err}
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarted, Service: name})
	}

	lm.started = true
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStarted})
	return nil
}

// Stop stops all started services in reverse start order. A failing service
// does not keep the others running, all stop errors are combined.
func (lm *DefaultLifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	err := lm.stopStarted(ctx)
	lm.started = false
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopped})
	return err
}

// stopStarted stops the services in startOrder, newest first
func (lm *DefaultLifecycleManager) stopStarted(ctx context.Context) error {
	var errs error
	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := lm.services[name].Stop(stopCtx)
		cancel()

		if err != nil {
			errs = multierr.Append(errs, &ServiceError{Operation: "stop", Service: name, Err: err})
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopFailed, Service: name, Error: err})
			lm.logger.Warn("service failed to stop", zap.String("service", name), zap.Error(err))
			continue
		}
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopped, Service: name})
	}
	lm.startOrder = nil
	return errs
}

// Health returns the health status of all services
func (lm *DefaultLifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(lm.services))
	for name, service := range lm.services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		health[name] = status
	}
	return health
}

// Services returns all registered service names, sorted
func (lm *DefaultLifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns a channel for lifecycle events
func (lm *DefaultLifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener adds a lifecycle event listener. Listeners are called
// synchronously with the manager locked and must not call back into it.
func (lm *DefaultLifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for service operations
func (lm *DefaultLifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *DefaultLifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	return lm.started
}

// calculateStartOrder sorts services topologically with Kahn's algorithm,
// breaking ties by name
func (lm *DefaultLifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, errors.Annotatef(ErrUnknownDependency, "%s of service %s", dep, service)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	queue := []string{}
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := graph[current]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

// broadcastEvent stamps the event and hands it to the channel and listeners
func (lm *DefaultLifecycleManager) broadcastEvent(event LifecycleEvent) {
	event.Timestamp = time.Now()

	select {
	case lm.eventChan <- event:
	default:
	}

	for _, listener := range lm.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Error("lifecycle listener panicked", zap.Any("panic", r))
				}
			}()
			listener(event)
		}()
	}
}
