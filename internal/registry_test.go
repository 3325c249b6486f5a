package internal_test

import (
	"testing"

	"github.com/koopa0/tictacmoji-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistry_RegisterUnregister 測試連線註冊與註銷
func TestRegistry_RegisterUnregister(t *testing.T) {
	reg := internal.NewRegistry(newTestLogger(), func(*internal.Client) {})
	defer reg.Stop()

	a := internal.NewClient(nil)
	b := internal.NewClient(nil)

	reg.Register(a)
	reg.Register(b)
	assert.Equal(t, 2, reg.Count())
	assert.Len(t, reg.Clients(), 2)

	reg.Unregister(a)
	assert.Equal(t, 1, reg.Count())

	// 重複註銷是無操作
	reg.Unregister(a)
	assert.Equal(t, 1, reg.Count())
}

// TestRegistry_Sweep 測試 mark-then-terminate 心跳掃描
//
// 第一輪掃描清掉活性旗標並送出探測；第二輪掃描時旗標仍未
// 被 Pong 設回的連線被終止。半開連線的存活成本因此被限制在
// 至多兩個掃描週期。
func TestRegistry_Sweep(t *testing.T) {
	var terminated []*internal.Client
	var reg *internal.Registry

	// 模擬 Hub 的 teardown：終止時同時自註冊表移除
	reg = internal.NewRegistry(newTestLogger(), func(c *internal.Client) {
		terminated = append(terminated, c)
		reg.Unregister(c)
	})
	defer reg.Stop()

	responsive := internal.NewClient(nil)
	silent := internal.NewClient(nil)
	reg.Register(responsive)
	reg.Register(silent)

	// 第一輪：兩條連線都還掛著上一輪的活性旗標，只做標記
	reg.Sweep()
	require.Empty(t, terminated)
	assert.False(t, responsive.Alive())
	assert.False(t, silent.Alive())

	// 正確的客戶端程式庫會回 Pong，把旗標設回 true
	responsive.SetAlive(true)

	// 第二輪：沒有回音的連線被終止，有回音的重新標記
	reg.Sweep()
	require.Len(t, terminated, 1)
	assert.Same(t, silent, terminated[0])
	assert.Equal(t, 1, reg.Count())
	assert.False(t, responsive.Alive())

	// 第三輪：已終止的連線不會被重複終止
	responsive.SetAlive(true)
	reg.Sweep()
	assert.Len(t, terminated, 1)
}

// TestRegistry_SweepAll 測試全滅情況
func TestRegistry_SweepAll(t *testing.T) {
	count := 0
	var reg *internal.Registry
	reg = internal.NewRegistry(newTestLogger(), func(c *internal.Client) {
		count++
		reg.Unregister(c)
	})
	defer reg.Stop()

	for i := 0; i < 5; i++ {
		c := internal.NewClient(nil)
		c.SetAlive(false)
		reg.Register(c)
	}

	reg.Sweep()
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, reg.Count())
}
