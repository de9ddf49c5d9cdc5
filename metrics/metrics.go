// Package metrics 暴露引擎的 Prometheus 指标。
// 所有方法对 nil 接收者安全：不接指标时传 nil 即可，调用点零开销判空。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 聚合引擎的全部指标。
type Metrics struct {
	predictionsTotal     *prometheus.CounterVec
	recommendationsTotal *prometheus.CounterVec
	ratingsSubmitted     prometheus.Counter
	ratingsDeleted       prometheus.Counter
	retrainRunsTotal     *prometheus.CounterVec
	retrainDuration      prometheus.Histogram
	snapshotTrainedAt    prometheus.Gauge
}

// New 在 reg 上注册并返回指标集；reg 为 nil 时使用默认注册表。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		predictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerec",
			Name:      "predictions_total",
			Help:      "Rating predictions served, by source (model, similarity, global_mean).",
		}, []string{"source"}),
		recommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerec",
			Name:      "recommendations_total",
			Help:      "Recommendation requests served, by path (model, similarity, empty).",
		}, []string{"path"}),
		ratingsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cinerec",
			Name:      "ratings_submitted_total",
			Help:      "Ratings accepted by submitRating.",
		}),
		ratingsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cinerec",
			Name:      "ratings_deleted_total",
			Help:      "Ratings removed by deleteRating.",
		}),
		retrainRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerec",
			Name:      "retrain_runs_total",
			Help:      "Retraining runs, by terminal status (skipped, succeeded, failed).",
		}, []string{"status"}),
		retrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cinerec",
			Name:      "retrain_duration_seconds",
			Help:      "Wall-clock duration of successful retraining runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		snapshotTrainedAt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cinerec",
			Name:      "snapshot_trained_at_timestamp_seconds",
			Help:      "Unix timestamp of the active snapshot's training time.",
		}),
	}
}

// Prediction 记录一次评分预测，source 为 model/similarity/global_mean。
func (m *Metrics) Prediction(source string) {
	if m == nil {
		return
	}
	m.predictionsTotal.WithLabelValues(source).Inc()
}

// Recommendation 记录一次推荐请求，path 为 model/similarity/empty。
func (m *Metrics) Recommendation(path string) {
	if m == nil {
		return
	}
	m.recommendationsTotal.WithLabelValues(path).Inc()
}

// RatingSubmitted 记录一次评分提交。
func (m *Metrics) RatingSubmitted() {
	if m == nil {
		return
	}
	m.ratingsSubmitted.Inc()
}

// RatingDeleted 记录一次评分删除。
func (m *Metrics) RatingDeleted() {
	if m == nil {
		return
	}
	m.ratingsDeleted.Inc()
}

// RetrainRun 记录一次重训终态。
func (m *Metrics) RetrainRun(status string) {
	if m == nil {
		return
	}
	m.retrainRunsTotal.WithLabelValues(status).Inc()
}

// RetrainDuration 记录一次成功重训的耗时。
func (m *Metrics) RetrainDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.retrainDuration.Observe(d.Seconds())
}

// SnapshotTrainedAt 记录当前活跃快照的训练时间。
func (m *Metrics) SnapshotTrainedAt(t time.Time) {
	if m == nil {
		return
	}
	m.snapshotTrainedAt.Set(float64(t.Unix()))
}
