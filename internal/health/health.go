package health

import (
	"context"
	"time"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/policy"
	"github.com/park285/svalinn-gateway-go/internal/store"
)

var startTime = time.Now()

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Pinger 는 외부 의존성 연결 확인 인터페이스다.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps 는 상태 수집에 쓰는 살아있는 구성 요소들이다.
// nil 필드는 해당 구성 요소가 비활성이라는 뜻이다.
type Deps struct {
	Config   *config.Config
	Registry *model.Registry
	Policies *policy.Set
	Verdicts *store.Store
	Audit    Pinger
}

// Collect 는 헬스 상태를 수집한다.
// deepChecks 가 false 면 외부 의존성에 접속하지 않는다. (liveness 용)
func Collect(ctx context.Context, deps Deps, deepChecks bool) Response {
	if ctx == nil {
		ctx = context.Background()
	}

	components := map[string]Component{
		"app":           buildAppStatus(),
		"models":        buildModelsStatus(deps),
		"policies":      buildPoliciesStatus(deps),
		"verdict_store": buildVerdictStoreStatus(ctx, deps, deepChecks),
		"audit":         buildAuditStatus(ctx, deps, deepChecks),
	}

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" {
			overall = "degraded"
			break
		}
	}

	return Response{Status: overall, Components: components}
}

func buildAppStatus() Component {
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"uptime_seconds": int(time.Since(startTime).Seconds()),
		},
	}
}

func buildModelsStatus(deps Deps) Component {
	if deps.Registry == nil {
		return Component{Status: "degraded", Detail: map[string]any{"registered": 0}}
	}

	keys := deps.Registry.Keys()
	budgetMB := 0
	if deps.Config != nil {
		budgetMB = deps.Config.Models.MemoryBudgetMB
	}

	status := "ok"
	if len(keys) == 0 {
		status = "degraded"
	}

	return Component{
		Status: status,
		Detail: map[string]any{
			"registered":       len(keys),
			"keys":             keys,
			"used_memory_mb":   deps.Registry.UsedMemoryMB(),
			"memory_budget_mb": budgetMB,
		},
	}
}

func buildPoliciesStatus(deps Deps) Component {
	count := deps.Policies.Len()
	status := "ok"
	if count == 0 {
		status = "degraded"
	}
	return Component{
		Status: status,
		Detail: map[string]any{"rules": count},
	}
}

func buildVerdictStoreStatus(ctx context.Context, deps Deps, deepChecks bool) Component {
	if deps.Verdicts == nil {
		return Component{Status: "degraded", Detail: map[string]any{"backend": "none"}}
	}

	backend := deps.Verdicts.Backend()
	detail := map[string]any{
		"backend":      backend,
		"deep_checked": deepChecks,
	}

	status := "ok"
	if deepChecks && backend == "valkey" {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := deps.Verdicts.Ping(checkCtx); err != nil {
			status = "degraded"
			detail["error"] = err.Error()
		} else {
			detail["connected"] = true
		}
	}

	return Component{Status: status, Detail: detail}
}

func buildAuditStatus(ctx context.Context, deps Deps, deepChecks bool) Component {
	enabled := deps.Config != nil && deps.Config.Database.Enabled
	detail := map[string]any{
		"enabled":      enabled,
		"deep_checked": deepChecks,
	}

	if !enabled || deps.Audit == nil {
		return Component{Status: "ok", Detail: detail}
	}

	status := "ok"
	if deepChecks {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := deps.Audit.Ping(checkCtx); err != nil {
			status = "degraded"
			detail["error"] = err.Error()
		} else {
			detail["connected"] = true
		}
	}

	return Component{Status: status, Detail: detail}
}
