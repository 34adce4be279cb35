// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// tabletopNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	tabletopNamespace = "tabletop"

	// 以下为当前使用的通用标签名。
	tagLabelName    = "tag"
	resultLabelName = "result"
	reasonLabelName = "reason"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [1 2 4 8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536 1.31072e+05]
	buckets = prometheus.ExponentialBuckets(1, 2, 18)

	// fanoutBuckets 为单次广播覆盖的会话数的桶划分。
	fanoutBuckets = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256}

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: tabletopNamespace,
			Name:      "active_connections",
			Help:      "number of open websocket connections",
		})

	ActiveGames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: tabletopNamespace,
			Name:      "active_games",
			Help:      "number of live game sessions",
		})

	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: tabletopNamespace,
			Name:      "active_rooms",
			Help:      "number of live rooms",
		})

	DispatchedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: tabletopNamespace,
			Name:      "dispatched_frames_total",
			Help:      "number of inbound frames routed to a handler, by tag and result",
		}, []string{tagLabelName, resultLabelName})

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: tabletopNamespace,
			Name:      "dispatch_latency_ms",
			Help:      "handler latency per inbound frame in milliseconds",
			Buckets:   buckets,
		}, []string{tagLabelName})

	BroadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: tabletopNamespace,
			Name:      "broadcast_fanout",
			Help:      "sessions covered per broadcast",
			Buckets:   fanoutBuckets,
		})

	DroppedConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: tabletopNamespace,
			Name:      "dropped_connections_total",
			Help:      "connections force-closed by the server, by reason",
		}, []string{reasonLabelName})

	RejectedHandshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: tabletopNamespace,
			Name:      "rejected_handshakes_total",
			Help:      "handshakes rejected before upgrade, by reason",
		}, []string{reasonLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(ActiveConnections)
	r.MustRegister(ActiveGames)
	r.MustRegister(ActiveRooms)
	r.MustRegister(DispatchedFrames)
	r.MustRegister(DispatchLatency)
	r.MustRegister(BroadcastFanout)
	r.MustRegister(DroppedConnections)
	r.MustRegister(RejectedHandshakes)
	metricRegisterer = r
}
