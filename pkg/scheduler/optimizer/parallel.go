// Package optimizer 提供次班比例分配与限时搜索
package optimizer

import (
	"context"
	"runtime"
	"sync"

	"github.com/paiban/autoshift/pkg/model"
)

// Candidate 一个已评分的候选方案
type Candidate struct {
	Plan    *model.Plan
	Metrics model.Metrics
}

// ParallelEvaluator 并行生成并评分一批种子对应的方案
type ParallelEvaluator struct {
	workers int
	input   *PlanInput
	target  float64
	weights model.ScoreWeights
}

// NewParallelEvaluator 创建并行评估器，workers<=0 时取 CPU 数
func NewParallelEvaluator(workers int, input *PlanInput, target float64, weights model.ScoreWeights) *ParallelEvaluator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ParallelEvaluator{
		workers: workers,
		input:   input,
		target:  target,
		weights: weights,
	}
}

// Evaluate 评估单个种子
func (p *ParallelEvaluator) Evaluate(seed int64) Candidate {
	plan := BuildPlan(p.input, seed)
	return Candidate{
		Plan:    plan,
		Metrics: Score(p.input.Calendar, plan, p.target, p.weights),
	}
}

// EvaluateBatch 并行评估一批种子，结果按种子顺序返回。
// ctx 取消后未开始的种子不再评估，对应位置的 Plan 为 nil。
func (p *ParallelEvaluator) EvaluateBatch(ctx context.Context, seeds []int64) []Candidate {
	results := make([]Candidate, len(seeds))
	if len(seeds) == 0 {
		return results
	}

	jobCh := make(chan int, len(seeds))
	for i := range seeds {
		jobCh <- i
	}
	close(jobCh)

	workers := min(p.workers, len(seeds))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				if ctx.Err() != nil {
					return
				}
				results[i] = p.Evaluate(seeds[i])
			}
		}()
	}
	wg.Wait()

	return results
}
