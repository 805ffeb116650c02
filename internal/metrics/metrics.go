package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorization server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CodesIssued         prometheus.Counter
	CodeRedemptions     *prometheus.CounterVec
	TokensIssued        *prometheus.CounterVec
	TokenValidations    *prometheus.CounterVec
	QuotaRejections     prometheus.Counter
	TokensRevoked       prometheus.Counter
	TxRetries           prometheus.Counter
	SecretVerifyLatency prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CodesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_oauth_codes_issued_total",
			Help: "Total number of authorization codes issued",
		}),
		CodeRedemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_oauth_code_redemptions_total",
			Help: "Authorization code redemptions by result",
		}, []string{"result"}),
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_oauth_tokens_issued_total",
			Help: "Bearer tokens handed out, by whether a new record was created or an existing one regenerated",
		}, []string{"path"}),
		TokenValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_oauth_token_validations_total",
			Help: "Bearer token validations by result",
		}, []string{"result"}),
		QuotaRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_oauth_quota_rejections_total",
			Help: "Token exchanges rejected because the client quota was full",
		}),
		TokensRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_oauth_tokens_revoked_total",
			Help: "Token records deleted by revocation or expiry",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_oauth_tx_retries_total",
			Help: "Units of work re-run after a serialization or uniqueness conflict",
		}),
		SecretVerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_oauth_secret_verify_seconds",
			Help:    "Duration of client secret verification",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_oauth_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
	}
}

// IncCodesIssued records a persisted authorization code.
func (m *Metrics) IncCodesIssued() {
	if m == nil {
		return
	}
	m.CodesIssued.Inc()
}

// IncCodeRedemption records a redemption attempt outcome.
func (m *Metrics) IncCodeRedemption(result string) {
	if m == nil {
		return
	}
	m.CodeRedemptions.WithLabelValues(result).Inc()
}

// IncTokensIssued records a bearer handed to a client. path is "new" or "regenerated".
func (m *Metrics) IncTokensIssued(path string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(path).Inc()
}

// IncTokenValidation records a validation outcome.
func (m *Metrics) IncTokenValidation(result string) {
	if m == nil {
		return
	}
	m.TokenValidations.WithLabelValues(result).Inc()
}

// IncQuotaRejection records an exchange refused because the client is full.
func (m *Metrics) IncQuotaRejection() {
	if m == nil {
		return
	}
	m.QuotaRejections.Inc()
}

// AddTokensRevoked records n deleted token records.
func (m *Metrics) AddTokensRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensRevoked.Add(float64(n))
}

// IncTxRetry records one retried unit of work.
func (m *Metrics) IncTxRetry() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

// ObserveSecretVerify records how long one secret verification took.
func (m *Metrics) ObserveSecretVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.SecretVerifyLatency.Observe(d.Seconds())
}

// IncHTTPRequest records a served request.
func (m *Metrics) IncHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
