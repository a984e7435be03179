package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/guardian"
	"github.com/park285/svalinn-gateway-go/internal/metrics"
	"github.com/park285/svalinn-gateway-go/internal/normalizer"
)

// Stage 는 파이프라인 단계 이름이다.
type Stage string

const (
	StageInputGuardian  Stage = "input_guardian"
	StageHoneypot       Stage = "honeypot"
	StageOutputGuardian Stage = "output_guardian"
)

// State 는 요청의 수명주기 상태다.
type State string

const (
	StatePending       State = "PENDING"
	StateInputChecked  State = "INPUT_CHECKED"
	StateHoneypotRun   State = "HONEYPOT_RUN"
	StateOutputChecked State = "OUTPUT_CHECKED"
	StateBlocked       State = "BLOCKED"
	StateForwarded     State = "FORWARDED"
)

// Request 는 검사 대상 입력이다.
// ReceivedAt 이 비어 있으면 Run 이 수신 시각을 채운다.
type Request struct {
	ID         string    `json:"id"`
	Input      string    `json:"input"`
	ReceivedAt time.Time `json:"received_at"`
}

// StageRecord 는 수행된 단계 하나의 판정 기록이다.
type StageRecord struct {
	Stage      Stage         `json:"stage"`
	Kind       guardian.Kind `json:"kind"`
	Reasoning  string        `json:"reasoning,omitempty"`
	PolicyID   string        `json:"policy_id,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// Result 는 파이프라인 최종 결과다.
// Blocked 가 true 면 요청을 실제 LLM 에 전달해서는 안 된다.
type Result struct {
	RequestID  string          `json:"request_id"`
	ReceivedAt time.Time       `json:"received_at"`
	State      State           `json:"state"`
	Verdict    guardian.Kind   `json:"verdict"`
	Blocked    bool            `json:"blocked"`
	PolicyID   string          `json:"policy_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	View       normalizer.View `json:"normalized"`
	Stages     []StageRecord   `json:"stages"`
	ElapsedMS  int64           `json:"elapsed_ms"`
}

// Normalizer 는 역난독화 계층이다.
type Normalizer interface {
	Normalize(text string) normalizer.View
}

// InputChecker 는 입력 판정 단계다.
type InputChecker interface {
	Evaluate(ctx context.Context, view normalizer.View) (guardian.Verdict, error)
}

// Decoy 는 미끼 실행 단계다.
type Decoy interface {
	Execute(ctx context.Context, input string) (string, error)
}

// OutputChecker 는 미끼 출력 판정 단계다.
type OutputChecker interface {
	Evaluate(ctx context.Context, request string, response string) (guardian.Verdict, error)
}

// Sink 는 최종 결과를 소비한다. (감사 기록 등)
// Record 는 파이프라인을 지연시키지 않도록 빠르게 반환해야 한다.
type Sink interface {
	Record(ctx context.Context, result Result)
}

// Options 는 Runner 구성이다.
type Options struct {
	Normalizer Normalizer
	Input      InputChecker
	Honeypot   Decoy
	Output     OutputChecker

	InputCfg    config.GuardianConfig
	HoneypotCfg config.GuardianConfig
	OutputCfg   config.GuardianConfig
	PipelineCfg config.PipelineConfig

	Metrics *metrics.Store
	Sinks   []Sink
	Logger  *slog.Logger
}

// Runner 는 단계를 순서대로 수행하는 오케스트레이터다.
// fail-fast: UNSAFE 가 나오면 남은 단계를 건너뛴다.
// fail-closed: 단계 오류/타임아웃은 ERROR 차단으로 끝난다. 통과 지름길은 없다.
type Runner struct {
	opts Options
}

// NewRunner 는 오케스트레이터를 생성한다.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run 은 요청 하나를 전체 파이프라인에 태운다.
// 반환된 Result 는 항상 유효하다. 오류 상황도 Result 로 표현된다(ERROR/BLOCKED).
func (r *Runner) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = start
	}

	view := normalizer.View{Raw: req.Input, Text: req.Input}
	if r.opts.Normalizer != nil {
		view = r.opts.Normalizer.Normalize(req.Input)
	}

	result := Result{
		RequestID:  req.ID,
		ReceivedAt: receivedAt,
		State:      StatePending,
		View:       view,
	}

	// 1단계: 입력 가디언
	verdict := r.runInput(ctx, &result, view)
	result.State = StateInputChecked
	if verdict.Blocked() {
		return r.finish(ctx, &result, verdict, start)
	}

	// 2단계: 미끼 실행 + 3단계: 출력 가디언
	// 미끼는 정규화 전의 원문 페이로드를 실행한다. 정규화가 트릭을 걷어낸
	// 텍스트로는 유도하려는 위반이 재현되지 않는다.
	if r.opts.HoneypotCfg.Enabled && r.opts.Honeypot != nil {
		decoyOutput, decoyVerdict := r.runHoneypot(ctx, &result, view.Raw)
		result.State = StateHoneypotRun
		if decoyVerdict.Blocked() {
			return r.finish(ctx, &result, decoyVerdict, start)
		}

		if r.opts.OutputCfg.Enabled && r.opts.Output != nil {
			verdict = r.runOutput(ctx, &result, view.Raw, decoyOutput)
			result.State = StateOutputChecked
			if verdict.Blocked() {
				return r.finish(ctx, &result, verdict, start)
			}
		}
	}

	return r.finish(ctx, &result, guardian.Verdict{Kind: guardian.KindSafe}, start)
}

func (r *Runner) runInput(ctx context.Context, result *Result, view normalizer.View) guardian.Verdict {
	return r.runStage(ctx, result, StageInputGuardian, r.stageTimeout(r.opts.InputCfg),
		func(stageCtx context.Context) (guardian.Verdict, error) {
			return r.opts.Input.Evaluate(stageCtx, view)
		})
}

func (r *Runner) runHoneypot(ctx context.Context, result *Result, input string) (string, guardian.Verdict) {
	var output string
	verdict := r.runStage(ctx, result, StageHoneypot, r.stageTimeout(r.opts.HoneypotCfg),
		func(stageCtx context.Context) (guardian.Verdict, error) {
			generated, err := r.opts.Honeypot.Execute(stageCtx, input)
			if err != nil {
				return guardian.Verdict{}, err
			}
			output = generated
			// 미끼 실행 자체는 판정하지 않는다. 판정은 출력 가디언의 몫이다.
			return guardian.Verdict{Kind: guardian.KindSafe, Reasoning: "decoy executed"}, nil
		})
	return output, verdict
}

func (r *Runner) runOutput(ctx context.Context, result *Result, request string, response string) guardian.Verdict {
	return r.runStage(ctx, result, StageOutputGuardian, r.stageTimeout(r.opts.OutputCfg),
		func(stageCtx context.Context) (guardian.Verdict, error) {
			return r.opts.Output.Evaluate(stageCtx, request, response)
		})
}

// runStage 는 단계 하나를 타임아웃 안에서 수행하고 기록을 남긴다.
// 오류와 타임아웃은 ERROR 판정으로 변환된다. (fail-closed)
func (r *Runner) runStage(
	ctx context.Context,
	result *Result,
	stage Stage,
	timeout time.Duration,
	fn func(context.Context) (guardian.Verdict, error),
) guardian.Verdict {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stageStart := time.Now()
	verdict, err := fn(stageCtx)
	elapsed := time.Since(stageStart)

	if err != nil {
		reason := "stage failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "stage timeout"
		}
		verdict = guardian.Verdict{Kind: guardian.KindError, Reasoning: reason}
		if r.opts.Logger != nil {
			r.opts.Logger.Warn("stage_failed", "stage", string(stage), "err", err, "duration_ms", elapsed.Milliseconds())
		}
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordStage(string(stage), elapsed, verdict.Kind == guardian.KindError)
	}

	result.Stages = append(result.Stages, StageRecord{
		Stage:      stage,
		Kind:       verdict.Kind,
		Reasoning:  verdict.Reasoning,
		PolicyID:   verdict.PolicyID,
		DurationMS: elapsed.Milliseconds(),
	})
	return verdict
}

func (r *Runner) finish(ctx context.Context, result *Result, verdict guardian.Verdict, start time.Time) Result {
	result.Verdict = verdict.Kind
	result.Blocked = verdict.Blocked()
	result.PolicyID = verdict.PolicyID
	result.Reason = verdict.Reasoning
	result.ElapsedMS = time.Since(start).Milliseconds()
	if result.Blocked {
		result.State = StateBlocked
	} else {
		result.State = StateForwarded
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordVerdict(string(result.Verdict))
	}
	if r.opts.Logger != nil {
		r.opts.Logger.Info("pipeline_done",
			"request_id", result.RequestID,
			"state", string(result.State),
			"verdict", string(result.Verdict),
			"policy_id", result.PolicyID,
			"stages", len(result.Stages),
			"elapsed_ms", result.ElapsedMS,
		)
	}
	for _, sink := range r.opts.Sinks {
		sink.Record(ctx, *result)
	}
	return *result
}

func (r *Runner) stageTimeout(cfg config.GuardianConfig) time.Duration {
	seconds := cfg.TimeoutSeconds
	if seconds <= 0 {
		seconds = r.opts.PipelineCfg.DefaultStageTimeoutSeconds
	}
	if seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}
