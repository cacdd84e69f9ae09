package paper

import (
	"context"
	"sync"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

// StaticMarketData serves fixed markets and order books. Books can be
// replaced at any time.
type StaticMarketData struct {
	mu      sync.RWMutex
	markets []domain.Market
	books   map[domain.Symbol]*domain.Orderbook
}

// NewStaticMarketData creates a source with the given markets and no books.
func NewStaticMarketData(markets []domain.Market) *StaticMarketData {
	return &StaticMarketData{
		markets: markets,
		books:   make(map[domain.Symbol]*domain.Orderbook),
	}
}

// SetBook replaces the book for its symbol.
func (s *StaticMarketData) SetBook(book *domain.Orderbook) {
	s.mu.Lock()
	s.books[book.Symbol] = book
	s.mu.Unlock()
}

func (s *StaticMarketData) FetchMarkets(context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Market(nil), s.markets...), nil
}

func (s *StaticMarketData) FetchOrderBook(_ context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error) {
	s.mu.RLock()
	book, ok := s.books[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil, apperror.New(apperror.CodeOrderbookFetchFailed, apperror.WithContext(symbol.String()))
	}

	out := &domain.Orderbook{
		Symbol:    book.Symbol,
		Bids:      append([]domain.OrderbookLevel(nil), book.Bids...),
		Asks:      append([]domain.OrderbookLevel(nil), book.Asks...),
		Timestamp: book.Timestamp,
	}
	if limit > 0 {
		out.Bids = out.Bids[:min(limit, len(out.Bids))]
		out.Asks = out.Asks[:min(limit, len(out.Asks))]
	}
	return out, nil
}

// FetchTickers derives tickers from the top of each book.
func (s *StaticMarketData) FetchTickers(_ context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Symbol]domain.Ticker, len(symbols))
	for _, sym := range symbols {
		book, ok := s.books[sym]
		if !ok {
			continue
		}
		t := domain.Ticker{Symbol: sym, Timestamp: book.Timestamp}
		if bid := book.BestBid(); bid != nil {
			t.Bid, t.BidVolume = bid.Price, bid.Amount
		}
		if ask := book.BestAsk(); ask != nil {
			t.Ask, t.AskVolume = ask.Price, ask.Amount
		}
		out[sym] = t
	}
	return out, nil
}
