package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	utilisation     *prometheus.GaugeVec
	debtIndex       *prometheus.GaugeVec
	poolLiquidity   *prometheus.GaugeVec
	totalBorrowed   *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of completed lending operations by kind.",
			}, []string{"op"}),
			operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operation_errors_total",
				Help: "Count of failed lending operations by kind.",
			}, []string{"op"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_utilisation_bps",
				Help: "Current pool utilisation in basis points.",
			}, []string{"pool"}),
			debtIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_debt_index",
				Help: "Current pool debt index scaled to 1.0 = 1e12.",
			}, []string{"pool"}),
			poolLiquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_liquidity",
				Help: "Total liquidity contributed to the pool.",
			}, []string{"pool"}),
			totalBorrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_borrowed",
				Help: "Total principal currently borrowed from the pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.operationErrors,
			lendingRegistry.utilisation,
			lendingRegistry.debtIndex,
			lendingRegistry.poolLiquidity,
			lendingRegistry.totalBorrowed,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		m.operationErrors.WithLabelValues(op).Inc()
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

func (m *LendingMetrics) SetPoolGauges(pool string, utilisationBps uint64, debtIndex, liquidity, borrowed float64) {
	if m == nil || pool == "" {
		return
	}
	m.utilisation.WithLabelValues(pool).Set(float64(utilisationBps))
	m.debtIndex.WithLabelValues(pool).Set(debtIndex)
	m.poolLiquidity.WithLabelValues(pool).Set(liquidity)
	m.totalBorrowed.WithLabelValues(pool).Set(borrowed)
}

func (m *LendingMetrics) InitOperation(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op).Add(0)
	m.operationErrors.WithLabelValues(op).Add(0)
}
