package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	OrdersPlaced      Counter
	OrdersFailed      Counter
	EntryFailed       Counter
	ExitFailed        Counter
	PartialHedges     Counter
	RebalanceFailed   Counter
	FramesDropped     Counter
	SnapshotErrors    Counter
	PositionOpen      Gauge
	BestSpread        Gauge
	EquityHyperliquid Gauge
	EquityAevo        Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		OrdersPlaced:      n,
		OrdersFailed:      n,
		EntryFailed:       n,
		ExitFailed:        n,
		PartialHedges:     n,
		RebalanceFailed:   n,
		FramesDropped:     n,
		SnapshotErrors:    n,
		PositionOpen:      g,
		BestSpread:        g,
		EquityHyperliquid: g,
		EquityAevo:        g,
	}
}
