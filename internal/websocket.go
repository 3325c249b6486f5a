package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把每條連線的入站訊框分派到房間操作，並把出站訊框送回一方或雙方？
//
// 設計方案：
//   ✅ 每連線一對讀寫 goroutine（讀取幫浦分派，寫入幫浦排空緩衝）
//   ✅ 訊框路由窮舉匹配 type 判別欄位，未知與格式錯誤一律丟棄
//   ✅ 單一 teardown 路徑 - 正常關閉與心跳終止走同一條，sync.Once 保證只跑一次

const (
	// writeWait 單次寫入的期限
	writeWait = 10 * time.Second

	// pongWait 讀取期限：超過兩個心跳掃描週期沒有任何訊框就放棄。
	// 掃描是主要的死連線回收機制，讀取期限只是底線保險。
	pongWait = 75 * time.Second

	// maxMessageSize 入站訊框大小上限
	maxMessageSize = 512
)

// Hub WebSocket 連線中心
//
// 路由入站訊框、註冊與終止連線。兩種定址模式：
//   - 單播：回覆發送方（room_created、error）
//   - 定向中繼：只發給房間另一位成員（opponent_move、opponent_left）
//
// 全房廣播只用於倒數與 game_start，由 Manager 在房間操作內完成。
type Hub struct {
	manager  *Manager
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub 建立 WebSocket 連線中心
func NewHub(manager *Manager, logger *slog.Logger) *Hub {
	hub := &Hub{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	// 心跳終止與正常關閉共用 teardown
	hub.registry = NewRegistry(logger, hub.teardown)

	return hub
}

// Registry 回傳連線註冊表
func (hub *Hub) Registry() *Registry {
	return hub.registry
}

// ServeWS 處理 WebSocket 升級請求
//
// 現有客戶端直接撥接服務器根路徑，所以升級端點掛在 "/"；
// 打到這裡的普通 HTTP 請求一律 404（健康檢查之外沒有其他 HTTP 介面）。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	client := NewClient(conn)
	hub.registry.Register(client)

	go client.writePump(hub.logger)
	go hub.readPump(client)

	hub.logger.Info("客戶端已連線",
		"client_id", client.ID,
		"remote", conn.RemoteAddr().String())
}

// readPump 讀取客戶端訊框並分派
//
// 任何入站訊框（含 Pong）都算活性證據。退出時走 teardown：
// 對手收到 opponent_left，房間刪除，倒數取消。
func (hub *Hub) readPump(c *Client) {
	defer hub.teardown(c)

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		c.SetAlive(true)
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"client_id", c.ID)
			}
			break
		}

		c.SetAlive(true)
		if messageType == websocket.TextMessage {
			hub.dispatch(c, message)
		}
	}
}

// dispatch 解析入站訊框並分派到對應的房間操作
//
// 每個已知類型對應一個儲存庫操作；未知或格式錯誤的訊框
// 丟棄並記錄，連線保持開啟。
func (hub *Hub) dispatch(c *Client, data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		hub.logger.Warn("丟棄無法解析的訊框",
			"client_id", c.ID,
			"error", err)
		return
	}

	switch msg.Type {
	case TypeCreateRoom:
		if _, err := hub.manager.CreateRoom(c, msg.HostData()); err != nil {
			// 代碼耗盡或重複建房都不回傳錯誤訊框
			hub.logger.Warn("建立房間失敗",
				"client_id", c.ID,
				"error", err)
		}

	case TypeJoinRoom:
		if err := hub.manager.JoinRoom(c, msg.RoomID, msg.GuestData()); err != nil {
			switch {
			case errors.Is(err, ErrRoomNotFound):
				c.Push(NewErrorMessage("Room not found").Encode())
			case errors.Is(err, ErrRoomFull):
				c.Push(NewErrorMessage("Room is full").Encode())
			default:
				hub.logger.Warn("加入房間失敗",
					"client_id", c.ID,
					"error", err)
			}
		}

	case TypeMove:
		if msg.Index == nil {
			hub.logger.Warn("丟棄缺少 index 的 move 訊框", "client_id", c.ID)
			return
		}
		hub.manager.ApplyMove(c, *msg.Index)

	case TypeRequestRematch:
		hub.manager.RequestRematch(c)

	case TypeGameOver:
		// 勝負由客戶端判定，這裡僅接受不處理

	default:
		hub.logger.Debug("收到未知訊息類型",
			"type", msg.Type,
			"client_id", c.ID)
	}
}

// teardown 連線終止的唯一路徑
//
// 正常關閉、讀取錯誤、心跳逾時全部收斂到這裡，sync.Once 保證
// 清理只執行一次：取消註冊 → 離開房間（倖存方收到恰好一次
// opponent_left）→ 關閉出站緩衝 → 關閉底層連線。
func (hub *Hub) teardown(c *Client) {
	c.closeOnce.Do(func() {
		hub.registry.Unregister(c)
		hub.manager.RemoveClient(c)
		close(c.Send)
		if c.Conn != nil {
			c.Conn.Close()
		}
		hub.logger.Info("客戶端已離線", "client_id", c.ID)
	})
}

// Stop 停止連線中心：終止心跳掃描並關閉所有連線
func (hub *Hub) Stop() {
	hub.registry.Stop()

	for _, c := range hub.registry.Clients() {
		hub.teardown(c)
	}

	hub.logger.Info("WebSocket Hub 已停止")
}

// writePump 將出站緩衝排空到底層連線
//
// 連線的所有資料幀寫入都集中在這一個 goroutine（Ping 控制幀
// 由心跳掃描用 WriteControl 並發送出）。緩衝關閉時送出關閉幀。
func (c *Client) writePump(logger *slog.Logger) {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			// teardown 關閉了緩衝，優雅關閉連線
			deadline := time.Now().Add(time.Second)
			if err := c.Conn.SetWriteDeadline(deadline); err == nil {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}

		if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			logger.Error("設置寫入期限失敗", "error", err)
		}
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}

		// 批次送出佇列中剩餘的訊框
		n := len(c.Send)
		for i := 0; i < n; i++ {
			message, ok := <-c.Send
			if !ok {
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error("發送訊息失敗", "error", err)
				return
			}
		}
	}
}
