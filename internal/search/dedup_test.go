package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedup(t *testing.T) {
	t.Run("记录后可查询", func(t *testing.T) {
		d := NewDedup()

		assert.False(t, d.Seen("msg-001"))
		d.Add("msg-001")
		assert.True(t, d.Seen("msg-001"))
		assert.Equal(t, 1, d.Len())
	})

	t.Run("空标识永不去重", func(t *testing.T) {
		d := NewDedup()

		d.Add("")
		assert.False(t, d.Seen(""))
		assert.Equal(t, 0, d.Len())
	})
}
