package event

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/fluxgate/service/messaging"
	"github.com/viant/fluxgate/service/messaging/fs"
	"github.com/viant/fluxgate/service/messaging/memory"
	"go.uber.org/zap"
)

// Service hands out one publisher and at most one listener per event payload
// type, all backed by queues of a single vendor.
type Service struct {
	mux               sync.RWMutex
	publishers        map[reflect.Type]any
	listeners         map[reflect.Type]interface{ Stop() }
	queueVendor       messaging.Vendor
	fsNewQueueConfig  func(name string) fs.Config
	memNewQueueConfig func(name string) memory.Config
	logger            *zap.Logger
}

func New(queueVendor messaging.Vendor, opts ...Option) (*Service, error) {
	ret := &Service{
		queueVendor: queueVendor,
		publishers:  make(map[reflect.Type]any),
		listeners:   make(map[reflect.Type]interface{ Stop() }),
	}
	for _, opt := range opts {
		opt(ret)
	}
	switch queueVendor {
	case messaging.VendorFs:
		if ret.fsNewQueueConfig == nil {
			return nil, fmt.Errorf("fs queue vendor requires fsNewQueueConfig")
		}
	case messaging.VendorMemory:
		if ret.memNewQueueConfig == nil {
			ret.memNewQueueConfig = func(string) memory.Config {
				config := memory.DefaultConfig()
				config.DropWhenFull = true
				return config
			}
		}
	default:
		return nil, fmt.Errorf("unsupported queue vendor: %s", queueVendor)
	}
	if ret.logger == nil {
		ret.logger = zap.NewNop()
	}
	return ret, nil
}

// Close stops every listener.
func (s *Service) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	for key, listener := range s.listeners {
		listener.Stop()
		delete(s.listeners, key)
	}
}

// QueueOf creates a queue named name of the service vendor.
func QueueOf[T any](s *Service, name string) (messaging.Queue[T], error) {
	switch s.queueVendor {
	case messaging.VendorFs:
		return fs.NewQueue[T](afs.New(), s.fsNewQueueConfig(name))
	case messaging.VendorMemory:
		return memory.NewQueue[T](s.memNewQueueConfig(name)), nil
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.queueVendor)
}

func keyOf[T any]() reflect.Type {
	rType := reflect.TypeOf((*T)(nil)).Elem()
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf starts a listener for events of type T, replacing the
// previous one. With topics only events of those topics reach handler.
func SetListenerOf[T any](s *Service, handler func(*Event[T]), topics ...string) error {
	publisher, err := PublisherOf[T](s)
	if err != nil {
		return err
	}
	key := keyOf[T]()
	listener := NewListener[T](publisher, handler, s.logger, topics...)
	s.mux.Lock()
	previous := s.listeners[key]
	s.listeners[key] = listener
	s.mux.Unlock()
	if previous != nil {
		previous.Stop()
	}
	listener.Start()
	return nil
}

// PublisherOf returns the publisher of events of type T.
func PublisherOf[T any](s *Service) (*Publisher[T], error) {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.publishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T]), nil
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.publishers[key]; ok {
		return ret.(*Publisher[T]), nil
	}
	queue, err := QueueOf[Event[T]](s, key.String())
	if err != nil {
		return nil, err
	}
	publisher := NewPublisher[T](queue)
	s.publishers[key] = publisher
	return publisher, nil
}
