package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsearch/backend/internal/domain"
)

func testKey(text string) domain.CacheKey {
	return domain.CacheKey{Text: text, IncludePersonal: true, MaxResults: 10}
}

func testRecords(ids ...string) []domain.EmailRecord {
	records := make([]domain.EmailRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, domain.EmailRecord{EntryID: id})
	}
	return records
}

func TestResultCache(t *testing.T) {
	t.Run("写入后读取命中", func(t *testing.T) {
		c := NewResultCache(10, time.Hour)
		c.Put(testKey("alpha"), testRecords("m1", "m2"))

		records, ok := c.Get(testKey("alpha"))

		require.True(t, ok)
		assert.Equal(t, testRecords("m1", "m2"), records)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("键不同互不干扰", func(t *testing.T) {
		c := NewResultCache(10, time.Hour)
		c.Put(testKey("alpha"), testRecords("m1"))

		_, ok := c.Get(testKey("beta"))
		assert.False(t, ok)

		// 范围开关参与键匹配
		key := testKey("alpha")
		key.IncludeShared = true
		_, ok = c.Get(key)
		assert.False(t, ok)
	})

	t.Run("过期条目惰性删除", func(t *testing.T) {
		c := NewResultCache(10, 10*time.Millisecond)
		c.Put(testKey("alpha"), testRecords("m1"))

		time.Sleep(20 * time.Millisecond)

		_, ok := c.Get(testKey("alpha"))
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("容量满时淘汰最旧条目", func(t *testing.T) {
		c := NewResultCache(2, time.Hour)

		c.Put(testKey("oldest"), testRecords("m1"))
		time.Sleep(5 * time.Millisecond)
		c.Put(testKey("middle"), testRecords("m2"))
		time.Sleep(5 * time.Millisecond)
		c.Put(testKey("newest"), testRecords("m3"))

		assert.Equal(t, 2, c.Len())
		_, ok := c.Get(testKey("oldest"))
		assert.False(t, ok)
		_, ok = c.Get(testKey("middle"))
		assert.True(t, ok)
		_, ok = c.Get(testKey("newest"))
		assert.True(t, ok)
	})

	t.Run("同键覆盖不触发淘汰", func(t *testing.T) {
		c := NewResultCache(1, time.Hour)

		c.Put(testKey("alpha"), testRecords("m1"))
		c.Put(testKey("alpha"), testRecords("m2"))

		records, ok := c.Get(testKey("alpha"))
		require.True(t, ok)
		assert.Equal(t, testRecords("m2"), records)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("清理过期条目返回数量", func(t *testing.T) {
		c := NewResultCache(10, 50*time.Millisecond)
		c.Put(testKey("alpha"), testRecords("m1"))
		c.Put(testKey("beta"), testRecords("m2"))

		time.Sleep(60 * time.Millisecond)
		c.Put(testKey("gamma"), testRecords("m3"))

		purged := c.PurgeExpired()

		assert.Equal(t, 2, purged)
		assert.Equal(t, 1, c.Len())
	})
}
