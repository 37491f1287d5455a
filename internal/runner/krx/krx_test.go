package krx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/broker"
	"krx-trader/internal/broker/brokertest"
	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/runner"
	"krx-trader/internal/strategy"
	"krx-trader/internal/types"
	"krx-trader/internal/wallet"
)

type fakeSource struct {
	candidates []types.Candidate
	excluded   map[string]struct{}
}

func (f *fakeSource) FetchToday(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error) {
	f.excluded = exclude
	var out []types.Candidate
	for _, c := range f.candidates {
		if _, skip := exclude[c.StockCode]; !skip {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchLimitUp(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error) {
	return f.FetchToday(ctx, exclude)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(ctx context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) All() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.msgs, "\n")
}

func newDeps(api *brokertest.API, s interfaces.Strategy, now time.Time) Deps {
	client := broker.NewClient(api, broker.Options{BaseDelay: time.Millisecond})
	w := wallet.New(client)
	return Deps{
		Client:   client,
		Wallet:   w,
		Executor: runner.NewExecutor(client, w, s, nil),
		Notifier: &recordingNotifier{},
		Now:      func() time.Time { return now },
	}
}

func ranged(symbol string, support, resistance int64) types.Candidate {
	return types.Candidate{StockCode: symbol, SupportPrice: &support, ResistancePrice: &resistance}
}

func runPeriodic(t *testing.T, p *Periodic) {
	t.Helper()
	r := runner.New(p, runner.ModePeriodic, runner.Options{LogDir: t.TempDir()})
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
}

func TestPeriodicFullSlotsNoBuy(t *testing.T) {
	api := brokertest.New().AddStock("A", 100).AddStock("B", 100)
	api.SetHoldings(types.Holding{Symbol: "A", Quantity: 10, AvgPrice: decimal.NewFromInt(100), Price: decimal.NewFromInt(100)})
	src := &fakeSource{candidates: []types.Candidate{ranged("B", 100, 200)}}

	p := NewPeriodic(newDeps(api, strategy.Basic{}, clock.Now()), src, PeriodicConfig{MaxStock: 1, MaxBuyAmount: decimal.NewFromInt(10000)})
	runPeriodic(t, p)

	assert.Contains(t, src.excluded, "A")
	assert.Equal(t, 0, api.CallCount("buy"))
}

func TestPeriodicBuysAtFibonacciLevel(t *testing.T) {
	api := brokertest.New().AddStock("B", 120).AddStock("C", 130).AddStock("D", 50)
	src := &fakeSource{candidates: []types.Candidate{
		ranged("B", 100, 200), // level 123, price 120 buys
		ranged("C", 100, 200), // price above level
		{StockCode: "D"},      // no range
		ranged("E", 200, 100), // invalid range
	}}

	p := NewPeriodic(newDeps(api, strategy.Basic{}, clock.Now()), src, PeriodicConfig{MaxStock: 5, MaxBuyAmount: decimal.NewFromInt(1000)})
	runPeriodic(t, p)

	placed := api.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, "B", placed[0].Symbol)
	assert.True(t, placed[0].Price.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, int64(8), placed[0].Quantity)
	// shutdown cancels what is still pending
	assert.Len(t, api.Cancelled(), 1)
}

func TestPeriodicRespectsFreeSlots(t *testing.T) {
	api := brokertest.New().AddStock("B", 100).AddStock("C", 100)
	src := &fakeSource{candidates: []types.Candidate{ranged("B", 100, 200), ranged("C", 100, 200)}}

	p := NewPeriodic(newDeps(api, strategy.Basic{}, clock.Now()), src, PeriodicConfig{MaxStock: 1, MaxBuyAmount: decimal.NewFromInt(1000)})
	runPeriodic(t, p)

	require.Len(t, api.Placed(), 1)
	assert.Equal(t, "B", api.Placed()[0].Symbol)
}

func TestPeriodicTakeProfitSellsFullQuantity(t *testing.T) {
	api := brokertest.New().AddStock("A", 1100).AddStock("S", 850)
	api.SetHoldings(
		types.Holding{Symbol: "A", Quantity: 7, AvgPrice: decimal.NewFromInt(1000)},
		types.Holding{Symbol: "S", Quantity: 3, AvgPrice: decimal.NewFromInt(1000)},
	)
	exits := ExitConfig{TakeProfit: decimal.RequireFromString("0.05"), StopLoss: decimal.RequireFromString("0.1")}

	p := NewPeriodic(newDeps(api, strategy.Basic{}, clock.Now()), &fakeSource{}, PeriodicConfig{MaxStock: 2, Exits: exits})
	runPeriodic(t, p)

	placed := api.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, types.SideSell, placed[0].Side)
	assert.Equal(t, "A", placed[0].Symbol)
	assert.Equal(t, int64(7), placed[0].Quantity)
	assert.Equal(t, "S", placed[1].Symbol)
	assert.Equal(t, int64(3), placed[1].Quantity)
}

func TestExitReason(t *testing.T) {
	e := ExitConfig{TakeProfit: decimal.RequireFromString("0.1")}
	h := types.Holding{AvgPrice: decimal.NewFromInt(1000)}

	assert.Equal(t, "take profit", e.exitReason(h, decimal.NewFromInt(1100)))
	assert.Equal(t, "", e.exitReason(h, decimal.NewFromInt(1099)))
	assert.Equal(t, "", e.exitReason(h, decimal.NewFromInt(1)), "stop loss disabled")
	assert.Equal(t, "", e.exitReason(types.Holding{}, decimal.NewFromInt(1)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestRealTimeBuysOncePerCandidate(t *testing.T) {
	api := brokertest.New().AddStock("B", 990).AddStock("C", 2000)
	src := &fakeSource{candidates: []types.Candidate{
		{StockCode: "B", BuyPrice: decimal.NewFromInt(1000)},
		{StockCode: "C", BuyPrice: decimal.NewFromInt(1000)},
	}}
	deps := newDeps(api, strategy.Basic{}, clock.Now())
	rt := NewRealTime(deps, src, RealTimeConfig{MaxStock: 3, MaxBuyAmount: decimal.NewFromInt(10000), Period: time.Millisecond})

	r := runner.New(rt, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return api.CallCount("balance") >= 5 })
	require.NoError(t, r.Stop(context.Background()))

	placed := api.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, "B", placed[0].Symbol)
	assert.True(t, placed[0].Price.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(10), placed[0].Quantity)
	assert.Equal(t, []string{"C"}, candidateSymbols(rt.candidates))
	assert.Contains(t, deps.Notifier.(*recordingNotifier).All(), "krx_realtime")
}

func TestRealTimeFullSlotsNoBuy(t *testing.T) {
	api := brokertest.New().AddStock("A", 100).AddStock("B", 900)
	api.SetHoldings(types.Holding{Symbol: "A", Quantity: 10, AvgPrice: decimal.NewFromInt(100), Price: decimal.NewFromInt(100)})
	src := &fakeSource{candidates: []types.Candidate{{StockCode: "B", BuyPrice: decimal.NewFromInt(1000)}}}
	rt := NewRealTime(newDeps(api, strategy.Basic{}, clock.Now()), src, RealTimeConfig{MaxStock: 1, MaxBuyAmount: decimal.NewFromInt(10000), Period: time.Millisecond})

	r := runner.New(rt, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return api.CallCount("balance") >= 5 })
	require.NoError(t, r.Stop(context.Background()))

	assert.Contains(t, src.excluded, "A")
	assert.Equal(t, 0, api.CallCount("quote"))
	assert.Equal(t, 0, api.CallCount("buy"))
	assert.Equal(t, []string{"B"}, candidateSymbols(rt.candidates))
}

func TestRealTimeCandidateFailureIsIsolated(t *testing.T) {
	api := brokertest.New().AddStock("B", 900).AddStock("C", 900)
	api.FailNext("quote", errors.New("malformed response"))
	src := &fakeSource{candidates: []types.Candidate{
		{StockCode: "B", BuyPrice: decimal.NewFromInt(1000)},
		{StockCode: "C", BuyPrice: decimal.NewFromInt(1000)},
	}}
	rt := NewRealTime(newDeps(api, strategy.Basic{}, clock.Now()), src, RealTimeConfig{MaxStock: 3, MaxBuyAmount: decimal.NewFromInt(1000), Period: time.Millisecond})

	r := runner.New(rt, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return api.CallCount("buy") == 2 })
	require.NoError(t, r.Stop(context.Background()))

	assert.NoError(t, r.Err())
	placed := api.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, "C", placed[0].Symbol, "C is tried while B's quote failed")
	assert.Equal(t, "B", placed[1].Symbol)
}

func TestRealTimeHoldingsFailureEndsSession(t *testing.T) {
	api := brokertest.New()
	fatal := errors.New("invalid credentials")
	rt := NewRealTime(newDeps(api, strategy.Basic{}, clock.Now()), &fakeSource{}, RealTimeConfig{MaxStock: 1, Period: time.Millisecond})

	r := runner.New(rt, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	api.FailNext("balance", fatal)
	<-r.Done()
	assert.ErrorIs(t, r.Err(), fatal)
	assert.ErrorIs(t, r.Stop(context.Background()), fatal)
}

func breakoutChart(symbol string) types.Chart {
	d := decimal.NewFromInt
	return types.Chart{Symbol: symbol, Bars: []types.ChartBar{
		{Open: d(900), Close: d(950), Amount: d(50)},
		{Open: d(1000), Close: d(1300), Amount: d(100)},
		{Open: d(1365), High: d(1550), Low: d(1350), Close: d(1400), Amount: d(120)},
	}}
}

func upperDeps(api *brokertest.API, now time.Time) Deps {
	return newDeps(api, strategy.NewUpperLimitBreakout(strategy.DefaultUpperLimitConfig()), now)
}

func TestUpperLimitBuysWithinMaxTrial(t *testing.T) {
	api := brokertest.New()
	api.SetQuote(types.Quote{Symbol: "U", Price: decimal.NewFromInt(1390)})
	api.SetChart(breakoutChart("U"))
	api.SetDeposit(types.KRW, 1000000)
	now := time.Date(2026, 10, 16, 14, 31, 0, 0, clock.KST)

	u := NewUpperLimit(upperDeps(api, now), &fakeSource{candidates: []types.Candidate{{StockCode: "U"}}},
		strategy.NewUpperLimitBreakout(strategy.DefaultUpperLimitConfig()),
		UpperLimitConfig{MaxBuyAmount: decimal.NewFromInt(100000), MaxTrial: 2, Period: time.Millisecond})

	r := runner.New(u, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	<-r.Done()
	require.NoError(t, r.Stop(context.Background()))

	placed := api.Placed()
	require.Len(t, placed, 2, "one buy per round, two rounds")
	assert.True(t, placed[0].Price.Equal(decimal.NewFromInt(1390)))
	assert.Equal(t, int64(71), placed[0].Quantity, "quantity from target 1400")
	assert.Equal(t, 2, api.CallCount("chart"))
}

func TestUpperLimitSkipsWhenDepositTooLow(t *testing.T) {
	api := brokertest.New()
	api.SetQuote(types.Quote{Symbol: "U", Price: decimal.NewFromInt(1390)})
	api.SetChart(breakoutChart("U"))
	api.SetDeposit(types.KRW, 1000)
	now := time.Date(2026, 10, 16, 15, 0, 0, 0, clock.KST)

	u := NewUpperLimit(upperDeps(api, now), &fakeSource{candidates: []types.Candidate{{StockCode: "U"}}},
		strategy.NewUpperLimitBreakout(strategy.DefaultUpperLimitConfig()),
		UpperLimitConfig{MaxBuyAmount: decimal.NewFromInt(100000), MaxTrial: 1})

	r := runner.New(u, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	<-r.Done()
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 0, api.CallCount("buy"))
}

func TestUpperLimitSkipsShortChartAndHighPrice(t *testing.T) {
	api := brokertest.New()
	api.SetQuote(types.Quote{Symbol: "SHORT", Price: decimal.NewFromInt(1390)})
	api.SetChart(types.Chart{Symbol: "SHORT", Bars: breakoutChart("SHORT").Bars[2:]})
	api.SetQuote(types.Quote{Symbol: "HIGH", Price: decimal.NewFromInt(1500)})
	api.SetChart(breakoutChart("HIGH"))
	api.SetDeposit(types.KRW, 1000000)
	now := time.Date(2026, 10, 16, 15, 0, 0, 0, clock.KST)

	src := &fakeSource{candidates: []types.Candidate{{StockCode: "SHORT"}, {StockCode: "HIGH"}}}
	u := NewUpperLimit(upperDeps(api, now), src,
		strategy.NewUpperLimitBreakout(strategy.DefaultUpperLimitConfig()),
		UpperLimitConfig{MaxBuyAmount: decimal.NewFromInt(100000), MaxTrial: 1})

	r := runner.New(u, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	<-r.Done()
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 0, api.CallCount("buy"))
}

func TestUpperLimitWaitsForGateUntilStopped(t *testing.T) {
	api := brokertest.New()
	api.SetQuote(types.Quote{Symbol: "U", Price: decimal.NewFromInt(1390)})
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, clock.KST)

	u := NewUpperLimit(upperDeps(api, now), &fakeSource{candidates: []types.Candidate{{StockCode: "U"}}},
		strategy.NewUpperLimitBreakout(strategy.DefaultUpperLimitConfig()), UpperLimitConfig{})

	r := runner.New(u, runner.ModeRealTime, runner.Options{})
	require.NoError(t, r.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	assert.Equal(t, 0, api.CallCount("quote"))
	assert.Equal(t, 0, api.CallCount("chart"))
}
