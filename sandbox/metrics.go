// Copyright 2025 QueryGate
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_requests_total",
			Help: "Query requests by terminal submission status",
		},
		[]string{"status"},
	)

	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_validation_failures_total",
			Help: "Validation denials by sandbox mode",
		},
		[]string{"mode"},
	)

	rateLimitDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querygate_rate_limit_denials_total",
			Help: "Submissions and executions denied by the rate limiter",
		},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_executions_total",
			Help: "Query executions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_execution_duration_seconds",
			Help:    "Repository execution latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_translations_total",
			Help: "Prompt translations by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	metricsOnce sync.Once
)

// registerMetrics registers all sandbox collectors exactly once.
func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			requestsTotal,
			validationFailures,
			rateLimitDenials,
			executionsTotal,
			executionDuration,
			translationsTotal,
		)
	})
}

func recordRequest(status string) {
	requestsTotal.WithLabelValues(status).Inc()
}

func recordValidationFailure(mode string) {
	validationFailures.WithLabelValues(mode).Inc()
}

func recordRateLimitDenial() {
	rateLimitDenials.Inc()
}

func recordExecution(action string, success bool, duration time.Duration) {
	outcome := "error"
	if success {
		outcome = "success"
	}
	executionsTotal.WithLabelValues(action, outcome).Inc()
	if duration > 0 {
		executionDuration.Observe(duration.Seconds())
	}
}

func recordTranslation(strategy string, success bool) {
	outcome := "error"
	if success {
		outcome = "success"
	}
	translationsTotal.WithLabelValues(strategy, outcome).Inc()
}
