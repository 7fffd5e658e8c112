package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 ops 端点暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		DispatchDuration, DispatchTotal, SessionRebuildTotal,
		MemoryAppendTotal, PromotionTotal, PruneDeleteTotal,
		ClassificationRunTotal,
	)
}

// DispatchDuration 单次请求派发耗时（秒）
var DispatchDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "personabot_dispatch_duration_seconds",
		Help:    "请求派发耗时（秒）",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180},
	},
)

// DispatchTotal 请求派发总数（按结果）
var DispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "personabot_dispatch_total",
		Help: "请求派发总数（按结果）",
	},
	[]string{"result"}, // ok | timeout | invalid | error
)

// SessionRebuildTotal 会话失效后重建次数
var SessionRebuildTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "personabot_session_rebuild_total",
		Help: "会话失效后重建次数",
	},
)

// MemoryAppendTotal 记忆条目追加总数
var MemoryAppendTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "personabot_memory_append_total",
		Help: "记忆条目追加总数",
	},
)

// PromotionTotal 晋升结果总数（promoted | skipped | failed）
var PromotionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "personabot_promotion_total",
		Help: "五星记忆晋升结果总数",
	},
	[]string{"result"},
)

// PruneDeleteTotal 过期日志删除总数
var PruneDeleteTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "personabot_prune_delete_total",
		Help: "过期日志删除总数",
	},
)

// ClassificationRunTotal 记忆分类运行总数（ok | empty | error）
var ClassificationRunTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "personabot_classification_run_total",
		Help: "记忆分类运行总数",
	},
	[]string{"result"},
)

// WriteProm 将 DefaultRegistry 的指标以文本格式写出
func WriteProm(w io.Writer) error {
	mfs, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
