// Package metrics holds the Prometheus collectors of the project store.
// A nil *Store is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Store counts events that matter while operating the object-storage
// adapter: degraded listings, skipped blobs, legacy-key hits and
// reconciliation outcomes.
type Store struct {
	listDegraded   *prometheus.CounterVec
	itemsSkipped   *prometheus.CounterVec
	deleteMatches  *prometheus.CounterVec
	reconcileItems *prometheus.CounterVec
}

// NewStore creates the collectors and registers them on reg.
func NewStore(reg prometheus.Registerer) (*Store, error) {
	m := &Store{
		listDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projectstore_list_degraded_total",
			Help: "Listings answered with sample data, by reason.",
		}, []string{"reason"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projectstore_list_items_skipped_total",
			Help: "Blobs skipped while listing projects, by reason.",
		}, []string{"reason"}),
		deleteMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projectstore_delete_matches_total",
			Help: "Successful project deletes, by the kind of key that matched.",
		}, []string{"kind"}),
		reconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projectstore_reconcile_items_total",
			Help: "Blobs visited by the orphan reconciler, by outcome.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.listDegraded, m.itemsSkipped, m.deleteMatches, m.reconcileItems} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Store) ListDegraded(reason string) {
	if m == nil {
		return
	}
	m.listDegraded.WithLabelValues(reason).Inc()
}

func (m *Store) ItemSkipped(reason string) {
	if m == nil {
		return
	}
	m.itemsSkipped.WithLabelValues(reason).Inc()
}

func (m *Store) DeleteMatched(kind string) {
	if m == nil {
		return
	}
	m.deleteMatches.WithLabelValues(kind).Inc()
}

func (m *Store) ReconcileItem(status string) {
	if m == nil {
		return
	}
	m.reconcileItems.WithLabelValues(status).Inc()
}
