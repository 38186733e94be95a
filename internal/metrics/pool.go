package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource reports database/sql connection pool statistics. *sql.DB and
// *sqlx.DB satisfy it.
type StatsSource interface {
	Stats() sql.DBStats
}

type poolCollector struct {
	db StatsSource

	inUse   *prometheus.Desc
	idle    *prometheus.Desc
	open    *prometheus.Desc
	maxOpen *prometheus.Desc
}

// RegisterPoolMetrics registers Prometheus gauges that report live
// connection pool statistics on every scrape.
func RegisterPoolMetrics(reg prometheus.Registerer, db StatsSource) {
	reg.MustRegister(&poolCollector{
		db: db,
		inUse: prometheus.NewDesc(
			"tradepromo_db_pool_in_use",
			"Number of database connections currently in use.",
			nil, nil,
		),
		idle: prometheus.NewDesc(
			"tradepromo_db_pool_idle",
			"Number of idle database connections in the pool.",
			nil, nil,
		),
		open: prometheus.NewDesc(
			"tradepromo_db_pool_open",
			"Number of established database connections.",
			nil, nil,
		),
		maxOpen: prometheus.NewDesc(
			"tradepromo_db_pool_max_open",
			"Maximum number of open database connections, 0 for unlimited.",
			nil, nil,
		),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inUse
	ch <- c.idle
	ch <- c.open
	ch <- c.maxOpen
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.db.Stats()

	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stat.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stat.Idle))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stat.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stat.MaxOpenConnections))
}
