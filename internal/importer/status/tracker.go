package status

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
)

const (
	DefaultActivityWindow = time.Minute
	// How often statuses are re-evaluated when nothing happens, so that sources whose activity window expired are
	// reported as idle.
	DefaultRefreshInterval = 5 * time.Second
)

var ErrTrackerStopped = errors.New("status tracker stopped")

// ImportStatus tells external observers whether a data source is still being imported.
type ImportStatus struct {
	DataSourceId string
	// True while an import cycle is in flight or the cursor advanced within the activity window.
	IsImporting  bool
	LastAdvanced time.Time
}

type eventKind int

const (
	jobStarted eventKind = iota
	jobFinished
	advanced
)

type event struct {
	kind         eventKind
	dataSourceId string
	at           time.Time
}

type sourceState struct {
	pendingJobs  int
	lastAdvanced time.Time
}

// Tracker aggregates the activity of all mediators per data source. Its state is owned by the goroutine running Run;
// mediators report activity and observers query it by sending messages.
type Tracker struct {
	activityWindow  time.Duration
	refreshInterval time.Duration
	clock           clock.WithTicker
	events          chan event
	snapshots       chan chan []ImportStatus
	subscriptions   chan chan []ImportStatus
	done            chan struct{}

	// Only accessed by Run.
	sources     map[string]*sourceState
	subscribers []chan []ImportStatus
	last        []ImportStatus
}

func NewTracker(activityWindow time.Duration, clock clock.WithTicker, dataSourceIds ...string) *Tracker {
	if activityWindow <= 0 {
		activityWindow = DefaultActivityWindow
	}
	t := &Tracker{
		activityWindow:  activityWindow,
		refreshInterval: DefaultRefreshInterval,
		clock:           clock,
		events:          make(chan event, 1024),
		snapshots:       make(chan chan []ImportStatus),
		subscriptions:   make(chan chan []ImportStatus),
		done:            make(chan struct{}),
		sources:         map[string]*sourceState{},
	}
	for _, id := range dataSourceIds {
		t.sources[id] = &sourceState{}
	}
	return t
}

// Run processes activity and queries until ctx is cancelled. Subscriber channels are closed on return.
func (t *Tracker) Run(ctx *flowlenscontext.Context) error {
	ticker := t.clock.NewTicker(t.refreshInterval)
	defer func() {
		ticker.Stop()
		close(t.done)
		for _, s := range t.subscribers {
			close(s)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-t.events:
			t.apply(e)
			t.publish()
		case reply := <-t.snapshots:
			t.drain()
			reply <- t.statuses()
		case s := <-t.subscriptions:
			t.drain()
			t.subscribers = append(t.subscribers, s)
			s <- t.statuses()
		case <-ticker.C():
			t.publish()
		}
	}
}

func (t *Tracker) JobStarted(dataSourceId string) {
	t.send(event{kind: jobStarted, dataSourceId: dataSourceId})
}

func (t *Tracker) JobFinished(dataSourceId string) {
	t.send(event{kind: jobFinished, dataSourceId: dataSourceId})
}

// Advanced records that the cursor of one of the data source's entity types moved at the given time.
func (t *Tracker) Advanced(dataSourceId string, at time.Time) {
	t.send(event{kind: advanced, dataSourceId: dataSourceId, at: at})
}

func (t *Tracker) send(e event) {
	select {
	case t.events <- e:
	case <-t.done:
	}
}

// Snapshot returns the current status of every known data source, sorted by data source id.
func (t *Tracker) Snapshot(ctx *flowlenscontext.Context) ([]ImportStatus, error) {
	reply := make(chan []ImportStatus, 1)
	select {
	case t.snapshots <- reply:
	case <-t.done:
		return nil, ErrTrackerStopped
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
	return <-reply, nil
}

// Subscribe returns a channel receiving the statuses of all data sources whenever one of them changes. Only the most
// recent value is kept for slow readers.
func (t *Tracker) Subscribe(ctx *flowlenscontext.Context) (<-chan []ImportStatus, error) {
	s := make(chan []ImportStatus, 1)
	select {
	case t.subscriptions <- s:
		return s, nil
	case <-t.done:
		return nil, ErrTrackerStopped
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
}

func (t *Tracker) apply(e event) {
	source, ok := t.sources[e.dataSourceId]
	if !ok {
		source = &sourceState{}
		t.sources[e.dataSourceId] = source
	}
	switch e.kind {
	case jobStarted:
		source.pendingJobs++
	case jobFinished:
		source.pendingJobs = max(source.pendingJobs-1, 0)
	case advanced:
		if e.at.After(source.lastAdvanced) {
			source.lastAdvanced = e.at
		}
	}
}

// drain applies every event already reported, so that queries observe activity reported before they were made.
func (t *Tracker) drain() {
	for {
		select {
		case e := <-t.events:
			t.apply(e)
		default:
			t.publish()
			return
		}
	}
}

func (t *Tracker) statuses() []ImportStatus {
	now := t.clock.Now()
	ids := maps.Keys(t.sources)
	slices.Sort(ids)
	statuses := make([]ImportStatus, len(ids))
	for i, id := range ids {
		source := t.sources[id]
		recent := !source.lastAdvanced.IsZero() && now.Sub(source.lastAdvanced) < t.activityWindow
		statuses[i] = ImportStatus{
			DataSourceId: id,
			IsImporting:  source.pendingJobs > 0 || recent,
			LastAdvanced: source.lastAdvanced,
		}
	}
	return statuses
}

func (t *Tracker) publish() {
	statuses := t.statuses()
	if slices.Equal(statuses, t.last) {
		return
	}
	t.last = statuses
	for _, s := range t.subscribers {
		select {
		case <-s:
		default:
		}
		s <- statuses
	}
}
