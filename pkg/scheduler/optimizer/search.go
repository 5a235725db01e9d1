package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/paiban/autoshift/pkg/model"
)

// SearchConfig 限时搜索配置
type SearchConfig struct {
	Budget           time.Duration      `json:"budget"`            // 搜索时长
	RandSeed         int64              `json:"rand_seed"`         // 种子发生器的种子，0 表示取当前时间
	BatchSize        int                `json:"batch_size"`        // 每批并行评估的候选数
	Workers          int                `json:"workers"`           // 并行评估协程数
	ProgressInterval time.Duration      `json:"progress_interval"` // 进度回调的最小间隔
	TargetRatio      float64            `json:"target_ratio"`      // 目标次班比例
	Weights          model.ScoreWeights `json:"weights"`
}

// DefaultSearchConfig 默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Budget:           time.Duration(model.DefaultThinkMinutes) * time.Minute,
		BatchSize:        8,
		Workers:          4,
		ProgressInterval: 200 * time.Millisecond,
		TargetRatio:      model.DefaultSecondRatio,
		Weights:          model.DefaultScoreWeights(),
	}
}

// Progress 搜索进度
type Progress struct {
	Iterations int
	BestScore  float64
	Elapsed    time.Duration
	Remaining  time.Duration
	Budget     time.Duration
}

// Fraction 已用时长占预算的比例，范围 [0,1]
func (p Progress) Fraction() float64 {
	if p.Budget <= 0 {
		return 1
	}
	return min(1, float64(p.Elapsed)/float64(p.Budget))
}

// ProgressFunc 进度回调
type ProgressFunc func(Progress)

// SearchResult 搜索结果
type SearchResult struct {
	Best       Candidate
	Initial    Candidate
	Iterations int
	Elapsed    time.Duration
	Cancelled  bool
}

// Optimizer 在休息方案固定的前提下反复重置随机种子生成次班方案，保留得分最高者
type Optimizer struct {
	config    SearchConfig
	evaluator *ParallelEvaluator
}

// New 创建优化器
func New(input *PlanInput, config SearchConfig) *Optimizer {
	def := DefaultSearchConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = def.ProgressInterval
	}
	if config.Weights == (model.ScoreWeights{}) {
		config.Weights = def.Weights
	}
	return &Optimizer{
		config:    config,
		evaluator: NewParallelEvaluator(config.Workers, input, config.TargetRatio, config.Weights),
	}
}

// Initial 使用固定种子生成确定的初始方案
func (o *Optimizer) Initial() Candidate {
	return o.evaluator.Evaluate(InitialSeed)
}

// Search 在预算时间内搜索，只接受严格更高的得分，同分保留先出现的方案。
// ctx 取消时提前结束并返回当前最优。
func (o *Optimizer) Search(ctx context.Context, initial Candidate, progress ProgressFunc) *SearchResult {
	start := time.Now()
	deadline := start.Add(o.config.Budget)

	seed := o.config.RandSeed
	if seed == 0 {
		seed = start.UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	result := &SearchResult{Best: initial, Initial: initial}
	lastReport := start
	seeds := make([]int64, o.config.BatchSize)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		for i := range seeds {
			seeds[i] = rng.Int63()
		}
		for _, c := range o.evaluator.EvaluateBatch(ctx, seeds) {
			if c.Plan == nil {
				continue
			}
			result.Iterations++
			if c.Metrics.Score > result.Best.Metrics.Score {
				result.Best = c
			}
		}

		now := time.Now()
		if progress != nil && now.Sub(lastReport) >= o.config.ProgressInterval {
			progress(Progress{
				Iterations: result.Iterations,
				BestScore:  result.Best.Metrics.Score,
				Elapsed:    now.Sub(start),
				Remaining:  max(0, deadline.Sub(now)),
				Budget:     o.config.Budget,
			})
			lastReport = now
		}
	}

	if ctx.Err() != nil {
		result.Cancelled = true
	}
	result.Elapsed = time.Since(start)
	return result
}

// FormatETA 把剩余时长格式化为 45s、2m5s、1h3m 形式，不足 1 秒返回空串
func FormatETA(d time.Duration) string {
	seconds := int(d / time.Second)
	if seconds <= 0 {
		return ""
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes, secs := seconds/60, seconds%60
	if minutes < 60 {
		if secs > 0 {
			return fmt.Sprintf("%dm%ds", minutes, secs)
		}
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	minutes %= 60
	if minutes > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}
