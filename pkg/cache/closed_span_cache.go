package cache

import (
	"errors"
	"fmt"

	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"
)

// ClosedSpanCache is a bounded span index. Open spans are pinned; once closed a span moves
// into an LRU of at most maxClosed entries. Lookups do not refresh recency, so the least
// recently closed span is the one evicted and the same stream always evicts the same spans.
type ClosedSpanCache struct {
	open    map[model.SpanKey]quark.Quark
	closed  *simplelru.LRU
	evicted int
	logger  *zap.Logger
}

func NewClosedSpanCache(maxClosed int64, logger *zap.Logger) (*ClosedSpanCache, error) {
	if maxClosed <= 0 {
		return nil, ErrInvalidBound
	}
	csc := &ClosedSpanCache{
		open:   make(map[model.SpanKey]quark.Quark),
		logger: logger,
	}
	closed, err := simplelru.NewLRU(int(maxClosed), csc.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create closed span cache: %w", err)
	}
	csc.closed = closed
	return csc, nil
}

func (csc *ClosedSpanCache) Get(key model.SpanKey) (quark.Quark, bool) {
	if q, ok := csc.open[key]; ok {
		return q, true
	}
	value, found := csc.closed.Peek(key)
	if !found {
		return quark.Root, false
	}
	q, ok := value.(quark.Quark)
	if !ok {
		csc.logger.Error("Unexpected value type in closed span cache", zap.String("span", key.String()))
		return quark.Root, false
	}
	return q, true
}

func (csc *ClosedSpanCache) Put(key model.SpanKey, q quark.Quark) {
	csc.open[key] = q
}

func (csc *ClosedSpanCache) Close(key model.SpanKey) {
	q, ok := csc.open[key]
	if !ok {
		return
	}
	delete(csc.open, key)
	csc.closed.Add(key, q)
}

func (csc *ClosedSpanCache) OpenLen() int {
	return len(csc.open)
}

func (csc *ClosedSpanCache) ClosedLen() int {
	return csc.closed.Len()
}

// Evicted counts closed spans that are no longer resolvable.
func (csc *ClosedSpanCache) Evicted() int {
	return csc.evicted
}

func (csc *ClosedSpanCache) Release() {
	csc.closed.Purge()
}

func (csc *ClosedSpanCache) onEvict(key interface{}, _ interface{}) {
	csc.evicted++
	if spanKey, ok := key.(model.SpanKey); ok {
		csc.logger.Debug("Evicted closed span", zap.String("span", spanKey.String()))
	}
}

var (
	ErrInvalidBound = errors.New("closed span bound must be positive")
)
