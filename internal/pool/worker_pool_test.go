package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool(t *testing.T) {
	t.Run("提交的任务全部执行", func(t *testing.T) {
		p := NewWorkerPool(2, 8, zap.NewNop())
		p.Start(context.Background())

		var done int64
		for i := 0; i < 8; i++ {
			p.Submit(func() {
				atomic.AddInt64(&done, 1)
			})
		}
		p.Stop()

		assert.Equal(t, int64(8), atomic.LoadInt64(&done))
	})

	t.Run("队列满时TrySubmit返回false", func(t *testing.T) {
		p := NewWorkerPool(1, 1, zap.NewNop())

		// 未启动，队列只容一个任务
		assert.True(t, p.TrySubmit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))
	})

	t.Run("任务panic不拖垮工作协程", func(t *testing.T) {
		p := NewWorkerPool(1, 4, zap.NewNop())
		p.Start(context.Background())

		var done int64
		p.Submit(func() { panic("boom") })
		p.Submit(func() {
			atomic.AddInt64(&done, 1)
		})
		p.Stop()

		assert.Equal(t, int64(1), atomic.LoadInt64(&done))
	})
}
