// Package metrics exposes prometheus counters for issuance and verification.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "certifier"

type Metrics struct {
	issued        prometheus.Counter
	revoked       prometheus.Counter
	batchRows     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	uploadRetries prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Certificates recorded on the ledger",
		}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_revoked_total",
			Help:      "Certificates invalidated on the ledger",
		}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Bulk issuance rows by outcome",
		}, []string{"status"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification requests by mode and result",
		}, []string{"mode", "status"}),
		uploadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_upload_retries_total",
			Help:      "Retried content store uploads",
		}),
	}
	for _, c := range []prometheus.Collector{m.issued, m.revoked, m.batchRows, m.verifications, m.uploadRetries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Issued() {
	if m != nil {
		m.issued.Inc()
	}
}

func (m *Metrics) Revoked() {
	if m != nil {
		m.revoked.Inc()
	}
}

func (m *Metrics) BatchRow(status string) {
	if m != nil {
		m.batchRows.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Verification(mode, status string) {
	if m != nil {
		m.verifications.WithLabelValues(mode, status).Inc()
	}
}

func (m *Metrics) UploadRetry() {
	if m != nil {
		m.uploadRetries.Inc()
	}
}
