package quotestream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/simaogato/tradeflow-backend/internal/domain"
	"go.uber.org/zap"
)

const DefaultBufferSize = 16

// ErrClosed is returned by Subscribe after the broadcaster has been closed
var ErrClosed = errors.New("quote broadcaster closed")

// Broadcaster polls the quote source once per subscribed symbol and fans the
// quotes out to every subscriber of that symbol.
type Broadcaster struct {
	quotes   domain.QuoteSource
	interval time.Duration
	buffer   int
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	feeds  map[string]*feed
	closed bool
	wg     sync.WaitGroup
}

type feed struct {
	symbol string
	subs   map[*Subscription]struct{}
	cancel context.CancelFunc
}

// Subscription receives quotes for one symbol until closed
type Subscription struct {
	Symbol string
	C      <-chan domain.Quote

	ch   chan domain.Quote
	b    *Broadcaster
	once sync.Once
}

// Close deregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
	})
}

// NewBroadcaster creates a new Broadcaster polling every interval
func NewBroadcaster(quotes domain.QuoteSource, interval time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		quotes:   quotes,
		interval: interval,
		buffer:   DefaultBufferSize,
		logger:   logger,
		now:      time.Now,
		feeds:    make(map[string]*feed),
	}
}

// Subscribe registers for quotes on symbol, starting its poller if needed
func (b *Broadcaster) Subscribe(symbol string) (*Subscription, error) {
	normalized, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	f, ok := b.feeds[normalized]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{symbol: normalized, subs: make(map[*Subscription]struct{}), cancel: cancel}
		b.feeds[normalized] = f

		b.wg.Add(1)
		go b.poll(ctx, f)
		b.logger.Debug("quote poller started", zap.String("symbol", normalized))
	}

	ch := make(chan domain.Quote, b.buffer)
	sub := &Subscription{Symbol: normalized, C: ch, ch: ch, b: b}
	f.subs[sub] = struct{}{}
	return sub, nil
}

// Symbols returns the symbols that currently have a running poller
func (b *Broadcaster) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	symbols := make([]string, 0, len(b.feeds))
	for s := range b.feeds {
		symbols = append(symbols, s)
	}
	return symbols
}

// Close stops every poller and closes every subscription
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for symbol, f := range b.feeds {
		f.cancel()
		for sub := range f.subs {
			close(sub.ch)
		}
		delete(b.feeds, symbol)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[sub.Symbol]
	if !ok {
		return
	}
	if _, ok := f.subs[sub]; !ok {
		return
	}

	delete(f.subs, sub)
	close(sub.ch)

	if len(f.subs) == 0 {
		f.cancel()
		delete(b.feeds, sub.Symbol)
		b.logger.Debug("quote poller stopped", zap.String("symbol", sub.Symbol))
	}
}

func (b *Broadcaster) poll(ctx context.Context, f *feed) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.pollOnce(ctx, f)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) pollOnce(ctx context.Context, f *feed) {
	price, err := b.quotes.LatestPrice(ctx, f.symbol)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("quote poll failed", zap.String("symbol", f.symbol), zap.Error(err))
		}
		return
	}

	quote := domain.Quote{Symbol: f.symbol, Price: price, Time: b.now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Subscriptions are closed under the same lock, so a cancelled feed must not send
	if ctx.Err() != nil {
		return
	}
	for sub := range f.subs {
		select {
		case sub.ch <- quote:
		default:
			b.logger.Debug("dropping quote for slow subscriber", zap.String("symbol", f.symbol))
		}
	}
}
