package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingRotation(t *testing.T) {
	ring := NewRing([]uint{1, 2, 3})

	// 6 次选择、每次成功回队，三台各拿两次且不连续
	counts := map[uint]int{}
	var prev uint
	for i := 0; i < 6; i++ {
		id, ok := ring.Next()
		require.True(t, ok)
		if i > 0 {
			assert.NotEqual(t, prev, id, "no server should receive two consecutive items")
		}
		counts[id]++
		prev = id
		ring.Requeue(id)
	}

	assert.Equal(t, map[uint]int{1: 2, 2: 2, 3: 2}, counts)
}

func TestRingExhaustion(t *testing.T) {
	ring := NewRing([]uint{7})

	id, ok := ring.Next()
	require.True(t, ok)
	assert.Equal(t, uint(7), id)

	// 不回队时队列耗尽
	_, ok = ring.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, ring.Len())
}

func TestRingSingleServerAllowsConsecutive(t *testing.T) {
	ring := NewRing([]uint{5})
	for i := 0; i < 3; i++ {
		id, ok := ring.Next()
		require.True(t, ok)
		assert.Equal(t, uint(5), id)
		ring.Requeue(id)
	}
}

func TestOwnerTag(t *testing.T) {
	tests := []struct {
		savePath string
		want     string
		ok       bool
	}{
		{"/data/hdsky/1001/52341", "hdsky/1001", true},
		{"/mnt/box2/data/ourbits/7/99", "ourbits/7", true},
		{"/data", "", false},
		{"", "", false},
		{"/a/b", "", false},
	}

	for _, tt := range tests {
		got, ok := OwnerTag(tt.savePath)
		assert.Equal(t, tt.ok, ok, tt.savePath)
		assert.Equal(t, tt.want, got, tt.savePath)
	}
}

func TestNewBatchShuffleDeterministic(t *testing.T) {
	// 相同随机源产生相同顺序，批次之间独立洗牌
	r1 := NewRing(shuffled([]uint{1, 2, 3, 4}, 42))
	r2 := NewRing(shuffled([]uint{1, 2, 3, 4}, 42))

	for {
		a, ok1 := r1.Next()
		b, ok2 := r2.Next()
		assert.Equal(t, ok1, ok2)
		if !ok1 {
			break
		}
		assert.Equal(t, a, b)
	}
}

func shuffled(ids []uint, seed int64) []uint {
	r := rand.New(rand.NewSource(seed))
	out := make([]uint, len(ids))
	copy(out, ids)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
