package internal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在客戶端異常斷線（裝置休眠、網路中斷）時回收半開的連線？
//
// 設計方案：
//   ✅ mark-then-terminate 心跳掃描 - 每 30 秒一輪
//   ✅ 掃描先看活性旗標：false 就強制關閉，true 就清旗標並送 Ping 探測
//   ✅ 正確的客戶端程式庫會自動回 Pong，Pong 處理器把旗標設回 true
//
// 半開連線的存活成本因此被限制在至多兩個掃描週期。
// 強制關閉走與正常關閉完全相同的清理路徑（對手恰好收到一次 opponent_left）。

const (
	// heartbeatInterval 心跳掃描週期
	heartbeatInterval = 30 * time.Second

	// sendBufferSize 每條連線的出站緩衝
	sendBufferSize = 256
)

// Client 一條存活的 WebSocket 連線
//
// 擁有權屬於註冊表；至多一個房間持有它的引用（不擁有）。
// RoomCode / UserData / WantsRematch 只在 Manager 的鎖下讀寫；
// 活性旗標由掃描 goroutine 與讀取幫浦並發觸碰，用自己的小鎖保護。
type Client struct {
	ID           string          // 不透明連線代號
	Conn         *websocket.Conn // 底層連線（單元測試中可為 nil）
	Send         chan []byte     // 出站緩衝，由寫入幫浦排空
	RoomCode     string          // 所屬房間代碼，加入後僅指派一次
	UserData     UserData
	WantsRematch bool

	isAlive   bool
	aliveMu   sync.Mutex
	closeOnce sync.Once
}

// NewClient 建立連線物件
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		isAlive: true,
	}
}

// Push 非阻塞入列一個出站訊框
//
// 持有儲存庫鎖時也可以安全呼叫：這裡絕不做網路 I/O。
// 緩衝滿了就丟棄（發送即忘，慢客戶端不拖累整個房間）。
func (c *Client) Push(data []byte) {
	select {
	case c.Send <- data:
	default:
	}
}

// Alive 讀取活性旗標
func (c *Client) Alive() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	return c.isAlive
}

// SetAlive 設置活性旗標
func (c *Client) SetAlive(v bool) {
	c.aliveMu.Lock()
	c.isAlive = v
	c.aliveMu.Unlock()
}

// ping 送出 Ping 控制幀
//
// WriteControl 可以與寫入幫浦的 WriteMessage 並發呼叫，
// 不需要經過 Send 緩衝。
func (c *Client) ping() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Registry 連線註冊表
//
// 追蹤每一條存活連線並定期掃描活性。終止路徑由建構時注入
// （與正常關閉共用同一條 teardown 路徑），註冊表本身不認識 Hub。
type Registry struct {
	clients   map[*Client]struct{}
	mu        sync.Mutex
	logger    *slog.Logger
	terminate func(*Client)
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRegistry 建立連線註冊表並啟動心跳掃描
func NewRegistry(logger *slog.Logger, terminate func(*Client)) *Registry {
	reg := &Registry{
		clients:   make(map[*Client]struct{}),
		logger:    logger,
		terminate: terminate,
		stopCh:    make(chan struct{}),
	}

	reg.wg.Add(1)
	go reg.sweepLoop()

	return reg
}

// Register 註冊連線
func (reg *Registry) Register(c *Client) {
	reg.mu.Lock()
	reg.clients[c] = struct{}{}
	reg.mu.Unlock()

	reg.logger.Debug("連線已註冊", "client_id", c.ID)
}

// Unregister 取消註冊連線
func (reg *Registry) Unregister(c *Client) {
	reg.mu.Lock()
	delete(reg.clients, c)
	reg.mu.Unlock()
}

// Count 目前追蹤的連線數
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}

// Clients 回傳連線快照
func (reg *Registry) Clients() []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	result := make([]*Client, 0, len(reg.clients))
	for c := range reg.clients {
		result = append(result, c)
	}
	return result
}

// sweepLoop 心跳掃描迴圈
func (reg *Registry) sweepLoop() {
	defer reg.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reg.Sweep()
		case <-reg.stopCh:
			return
		}
	}
}

// Sweep 執行一輪心跳掃描（公開方法供測試使用）
//
// 上一輪探測後沒有任何回音的連線直接終止；其餘連線清掉旗標
// 並送出新的 Ping。終止在快照之外進行，不持著註冊表的鎖
// 去跑清理路徑。
func (reg *Registry) Sweep() {
	reg.mu.Lock()
	var dead, live []*Client
	for c := range reg.clients {
		if c.Alive() {
			live = append(live, c)
		} else {
			dead = append(dead, c)
		}
	}
	reg.mu.Unlock()

	for _, c := range dead {
		reg.logger.Warn("心跳逾時，終止連線", "client_id", c.ID)
		reg.terminate(c)
	}

	for _, c := range live {
		c.SetAlive(false)
		if err := c.ping(); err != nil {
			reg.logger.Debug("發送 Ping 失敗", "client_id", c.ID, "error", err)
		}
	}
}

// Stop 停止心跳掃描
func (reg *Registry) Stop() {
	close(reg.stopCh)
	reg.wg.Wait()

	reg.logger.Info("連線註冊表已停止")
}
