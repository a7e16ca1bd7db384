package colstore

import "github.com/VictoriaMetrics/metrics"

// --------------------------------------------------------------------------
// Store Metrics
// --------------------------------------------------------------------------

// Counters are shared across all stores in the process; a memtable holds one
// store per row, so per-instance metrics would be unbounded. Export with
// metrics.WritePrometheus.
var (
	addRetries     = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="add"}`)
	addAllRetries  = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="add_all"}`)
	replaceRetries = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="replace"}`)
	deleteRetries  = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="delete"}`)
	purgeRetries   = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="purge"}`)
	clearRetries   = metrics.NewCounter(`cellar_colstore_cas_retries_total{op="clear"}`)

	addAllBatches = metrics.NewCounter(`cellar_colstore_batches_total`)
	cellsMerged   = metrics.NewCounter(`cellar_colstore_cells_merged_total`)
	earlyExits    = metrics.NewCounter(`cellar_colstore_early_exits_total`)
)
