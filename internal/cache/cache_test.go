package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeAxes_Values(t *testing.T) {
	c := NewTimeAxes(4)
	axis := c.Get(AxisKey{Samples: 5, SampleRate: 10, Pretrigger: 2})
	require.Len(t, axis, 5)
	assert.InDeltaSlice(t, []float32{-0.2, -0.1, 0, 0.1, 0.2}, axis, 1e-7)
}

func TestTimeAxes_ReturnsCachedSlice(t *testing.T) {
	c := NewTimeAxes(4)
	key := AxisKey{Samples: 100, SampleRate: 1000}
	a := c.Get(key)
	b := c.Get(key)
	assert.Same(t, &a[0], &b[0])
	assert.Equal(t, 1, c.Len())
}

func TestTimeAxes_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewTimeAxes(2)
	k1 := AxisKey{Samples: 1, SampleRate: 1}
	k2 := AxisKey{Samples: 2, SampleRate: 1}
	k3 := AxisKey{Samples: 3, SampleRate: 1}

	first := c.Get(k1)
	c.Get(k2)
	c.Get(k1) // k2 becomes least recently used
	c.Get(k3)

	assert.Equal(t, 2, c.Len())
	again := c.Get(k1)
	assert.Same(t, &first[0], &again[0])
}

func TestTimeAxes_ZeroSampleRate(t *testing.T) {
	c := NewTimeAxes(0)
	axis := c.Get(AxisKey{Samples: 3})
	assert.Equal(t, []float32{0, 0, 0}, axis)
}

func TestTimeAxes_Invalidate(t *testing.T) {
	c := NewTimeAxes(2)
	c.Get(AxisKey{Samples: 1, SampleRate: 1})
	c.Invalidate()
	assert.Equal(t, 0, c.Len())
}

func TestTimeAxes_Concurrent(t *testing.T) {
	c := NewTimeAxes(8)
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			axis := c.Get(AxisKey{Samples: i%10 + 1, SampleRate: 100})
			assert.Len(t, axis, i%10+1)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

func TestParameters_LoadGetInvalidate(t *testing.T) {
	p := NewParameters()

	_, _, loaded := p.Get(1)
	assert.False(t, loaded)

	p.Load(map[int64]map[string]any{1: {"ADC_µV": 1.5}})
	params, found, loaded := p.Get(1)
	assert.True(t, loaded)
	assert.True(t, found)
	assert.Equal(t, 1.5, params["ADC_µV"])

	_, found, _ = p.Get(2)
	assert.False(t, found)

	p.Invalidate()
	_, _, loaded = p.Get(1)
	assert.False(t, loaded)
}

func TestParameters_SnapshotIsDeepCopy(t *testing.T) {
	p := NewParameters()
	p.Load(map[int64]map[string]any{1: {"TR_mV": 2.0}})

	snap := p.Snapshot()
	snap[1]["TR_mV"] = 9.0

	params, _, _ := p.Get(1)
	assert.Equal(t, 2.0, params["TR_mV"])
}
