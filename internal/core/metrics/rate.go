package metrics

import (
	"sync"
	"time"
)

// ============================================================================
// RateMeter - 速率计算器
// ============================================================================

const rateBuckets = 60

// RateMeter 速率计算器（基于滑动窗口）
//
// 使用 60 个 1 秒桶计算最近 60 秒的平均速率。
type RateMeter struct {
	mu       sync.Mutex
	now      func() time.Time
	buckets  [rateBuckets]int64
	lastIdx  int
	lastTime time.Time
	lastAdd  time.Time
}

// NewRateMeter 创建速率计算器
func NewRateMeter() *RateMeter {
	return newRateMeter(time.Now)
}

func newRateMeter(now func() time.Time) *RateMeter {
	t := now()
	return &RateMeter{now: now, lastTime: t, lastAdd: t}
}

// Add 添加字节数到当前桶
func (r *RateMeter) Add(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.advance(now)
	r.buckets[r.lastIdx] += bytes
	r.lastAdd = now
}

// advance 移动到 now 所在的桶，跳过的桶清零
func (r *RateMeter) advance(now time.Time) {
	seconds := int(now.Sub(r.lastTime) / time.Second)
	if seconds <= 0 {
		return
	}
	if seconds >= rateBuckets {
		r.buckets = [rateBuckets]int64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % rateBuckets
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}

// Rate 返回平均速率（字节/秒）
func (r *RateMeter) Rate() float64 {
	return float64(r.Window()) / rateBuckets
}

// Window 返回窗口内的字节数
func (r *RateMeter) Window() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(r.now())

	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return total
}

// Reset 重置速率计算器
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = [rateBuckets]int64{}
	r.lastIdx = 0
	r.lastTime = r.now()
	r.lastAdd = r.lastTime
}

// LastUpdate 返回最后一次 Add 的时间
func (r *RateMeter) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAdd
}
