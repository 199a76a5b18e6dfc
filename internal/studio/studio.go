// Package studio holds the interactive state behind the ButtonStudio page:
// counter islands and the audio status indicator.
package studio

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/signal"
)

// MaxCounters bounds how many counters clients can create.
const MaxCounters = 256

// DefaultCounterID is the counter rendered on the home page.
const DefaultCounterID = "main"

var counterIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Counter is a numeric value changed one step at a time.
type Counter struct {
	ID    string
	value *signal.Signal[int]
	// steps orders changes with their events so watchers see the latest value last.
	steps sync.Mutex
}

// NewCounter creates a counter starting at start.
func NewCounter(id string, start int) *Counter {
	return &Counter{ID: id, value: signal.New(start)}
}

// Increment adds exactly one and returns the new value.
func (c *Counter) Increment() int {
	return c.value.Update(func(v int) int { return v + 1 })
}

// Decrement subtracts exactly one and returns the new value.
func (c *Counter) Decrement() int {
	return c.value.Update(func(v int) int { return v - 1 })
}

func (c *Counter) Value() int {
	return c.value.Get()
}

// Subscribe streams the counter's new values.
func (c *Counter) Subscribe() (<-chan int, func()) {
	return c.value.Subscribe()
}

// EventType names what changed in the studio.
type EventType string

const (
	EventCounter EventType = "counter"
	EventAudio   EventType = "audio"
)

// Event reports a state change to watchers.
type Event struct {
	Type      EventType   `json:"type"`
	ID        string      `json:"id,omitempty"`
	Value     int         `json:"value"`
	Status    AudioStatus `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Studio owns all counters and the audio status.
type Studio struct {
	start    int
	counters map[string]*Counter
	audio    *signal.Signal[AudioStatus]
	mutex    sync.RWMutex
	watchers []chan Event
	now      func() time.Time

	// audioMutex orders audio changes with their events.
	audioMutex sync.Mutex
}

// New creates a studio whose counters start at counterStart.
func New(counterStart int) *Studio {
	return &Studio{
		start:    counterStart,
		counters: make(map[string]*Counter),
		audio:    signal.New(AudioIdle),
		watchers: make([]chan Event, 0),
		now:      time.Now,
	}
}

// ValidateCounterID rejects ids that cannot appear in a URL segment.
func ValidateCounterID(id string) error {
	if !counterIDPattern.MatchString(id) {
		return errors.NewValidationError(errors.ErrCodeInvalidCounter, "invalid counter id: "+id).
			WithContext("id", id)
	}
	return nil
}

// Counter returns the counter for id, creating it on first use.
func (s *Studio) Counter(id string) (*Counter, error) {
	if err := ValidateCounterID(id); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	c, ok := s.counters[id]
	s.mutex.RUnlock()
	if ok {
		return c, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c, ok := s.counters[id]; ok {
		return c, nil
	}
	if len(s.counters) >= MaxCounters {
		return nil, errors.NewValidationError(errors.ErrCodeCounterLimit, "too many counters").
			WithContext("limit", MaxCounters)
	}

	c = NewCounter(id, s.start)
	s.counters[id] = c
	return c, nil
}

// Lookup returns an existing counter.
func (s *Studio) Lookup(id string) (*Counter, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.counters[id]
	if !ok {
		return nil, errors.ErrCounterNotFound(id)
	}
	return c, nil
}

// Counters returns the known counter ids in order.
func (s *Studio) Counters() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.counters))
	for id := range s.counters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Increment steps counter id up and notifies watchers.
func (s *Studio) Increment(id string) (int, error) {
	return s.step(id, (*Counter).Increment)
}

// Decrement steps counter id down and notifies watchers.
func (s *Studio) Decrement(id string) (int, error) {
	return s.step(id, (*Counter).Decrement)
}

func (s *Studio) step(id string, fn func(*Counter) int) (int, error) {
	c, err := s.Counter(id)
	if err != nil {
		return 0, err
	}
	c.steps.Lock()
	defer c.steps.Unlock()

	v := fn(c)
	s.emit(Event{Type: EventCounter, ID: id, Value: v})
	return v, nil
}

// Audio returns the current audio status.
func (s *Studio) Audio() AudioStatus {
	return s.audio.Get()
}

// ToggleAudio flips the audio status and returns the new one.
func (s *Studio) ToggleAudio() AudioStatus {
	s.audioMutex.Lock()
	defer s.audioMutex.Unlock()

	status := s.audio.Update(func(st AudioStatus) AudioStatus { return st.Toggle() })
	s.emit(Event{Type: EventAudio, Status: status})
	return status
}

// SetAudio stores status. Unknown statuses are rejected.
func (s *Studio) SetAudio(status AudioStatus) error {
	if !status.Valid() {
		return errors.NewValidationError(errors.ErrCodeInvalidStatus, "invalid audio status: "+string(status))
	}
	s.audioMutex.Lock()
	defer s.audioMutex.Unlock()

	if s.audio.Get() == status {
		return nil
	}
	s.audio.Set(status)
	s.emit(Event{Type: EventAudio, Status: status})
	return nil
}

// Watch returns a channel that receives studio events
func (s *Studio) Watch() <-chan Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := make(chan Event, 100)
	s.watchers = append(s.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (s *Studio) UnWatch(ch <-chan Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, watcher := range s.watchers {
		if watcher == ch {
			close(watcher)
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

func (s *Studio) emit(event Event) {
	event.Timestamp = s.now()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, watcher := range s.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
