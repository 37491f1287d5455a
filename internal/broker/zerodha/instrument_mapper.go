package zerodha

import (
	"sync"

	"krx-trader/internal/types"
)

// instrumentMapper maps trading symbols to Kite instruments
type instrumentMapper struct {
	bySymbol map[string]types.Stock
	byToken  map[int]string
	mu       sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		bySymbol: make(map[string]types.Stock),
		byToken:  make(map[int]string),
	}
}

// addMapping registers a symbol-instrument pair
func (im *instrumentMapper) addMapping(stock types.Stock) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.bySymbol[stock.Symbol] = stock
	im.byToken[stock.InstrumentToken] = stock.Symbol
}

func (im *instrumentMapper) getStock(symbol string) (types.Stock, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	s, ok := im.bySymbol[symbol]
	return s, ok
}

func (im *instrumentMapper) getSymbol(token int) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.byToken[token]
}

func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return len(im.bySymbol)
}

// clear removes all mappings before a reload
func (im *instrumentMapper) clear() {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.bySymbol = make(map[string]types.Stock)
	im.byToken = make(map[int]string)
}
