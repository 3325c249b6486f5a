package internal

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// 儲存庫層級的操作錯誤
//
// ErrRoomNotFound / ErrRoomFull 會以 error 訊框回傳給請求方，連線保持開啟；
// ErrCodeSpaceExhausted 只記錄日誌，不對客戶端暴露；
// ErrAlreadyInRoom 視為失序的客戶端行為，丟棄並記錄。
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("already in a room")
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
)

const (
	roomCodeLength   = 4
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeMaxAttempts  = 100

	countdownStart = 3
	countdownTick  = 1 * time.Second
)

// Manager 房間儲存庫
//
// 系統設計考量：
//
//  1. 併發控制（單一互斥鎖）：
//     代碼 → 房間的映射被所有連線共享，建立 / 加入 / 刪除必須序列化。
//     房間數與訊息率都小，採用儲存庫層級的一把鎖，而非每房間細粒度鎖。
//     持鎖期間絕不做網路 I/O：訊息送出只是非阻塞入列，由寫入幫浦異步送達。
//
//  2. 倒數計時器：
//     計時器以獨立 goroutine 運行，每個 tick 重新取得同一把鎖後才觸碰房間，
//     並確認自己仍是房間目前的倒數。連線關閉時同步取消倒數，
//     已取消的計時器不可能再打進已刪除的房間。
//
//  3. 回合完整性：
//     落子與再戰請求一律對照服務器持有的房間狀態驗證，不信任客戶端狀態。
//     棋盤內容只是已驗證落子的寫入一次投影，雙方客戶端各自從中繼串流重建。
type Manager struct {
	rooms  map[string]*Room // 房間代碼 -> Room
	mu     sync.Mutex
	logger *slog.Logger
}

// NewManager 建立房間儲存庫
//
// 不需要清掃迴圈：房間恆有至少一位成員，最後一位成員離線時
// 立即刪除，死連線則由註冊表的心跳掃描負責終止。
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// CreateRoom 建立房間並讓建房方佔據 0 號位
//
// 成功時向建房方回傳 room_created 訊框。代碼生成重試耗盡是唯一的
// 失敗情況，視為服務器端異常記錄，不屬於使用者可見錯誤。
func (m *Manager) CreateRoom(host *Client, data UserData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// roomId 一經指派不再變更
	if host.RoomCode != "" {
		return "", ErrAlreadyInRoom
	}

	code, err := m.generateCode()
	if err != nil {
		m.logger.Error("產生房間代碼失敗", "error", err)
		return "", err
	}

	room := NewRoom(code, host)
	m.rooms[code] = room

	host.RoomCode = code
	host.UserData = data
	host.WantsRematch = false

	host.Push(NewRoomCreated(code).Encode())

	m.logger.Info("房間已建立",
		"code", code,
		"client_id", host.ID,
		"player_name", data.Name)

	return code, nil
}

// JoinRoom 將訪客附加到 1 號位
//
// 代碼先統一轉為大寫，讓使用者輸入不分大小寫也能命中。
// 成功時通知房主（player_joined，附訪客資料）與訪客
// （joined_room，附房主資料與房間代碼），隨後啟動倒數。
// 失敗絕不產生副作用：不會建立房間，也不會改動現有房間。
func (m *Manager) JoinRoom(guest *Client, code string, data UserData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if guest.RoomCode != "" {
		return ErrAlreadyInRoom
	}

	room, exists := m.rooms[strings.ToUpper(code)]
	if !exists {
		return ErrRoomNotFound
	}
	if room.IsFull() {
		return ErrRoomFull
	}

	host := room.Players[0]
	room.Players = append(room.Players, guest)

	guest.RoomCode = room.Code
	guest.UserData = data
	guest.WantsRematch = false

	host.Push(NewPlayerJoined(data).Encode())
	guest.Push(NewJoinedRoom(room.Code, host.UserData).Encode())

	m.logger.Info("玩家加入房間",
		"code", room.Code,
		"client_id", guest.ID,
		"player_name", data.Name)

	m.startCountdown(room)

	return nil
}

// ApplyMove 套用一步棋並中繼給對手
//
// 任何違規都靜默忽略（不回傳錯誤訊框）：房間未啟動、發送方不是
// 當前回合持有者、索引越界、目標格已被佔用。行為良好的客戶端
// 不會產生這些訊框，這裡只防禦失序或惡意的客戶端。
//
// 成功時以發送方的位置索引標記格子、翻轉回合，
// 並只向對手中繼 opponent_move（絕不回送給落子方）。
func (m *Manager) ApplyMove(c *Client, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.RoomCode == "" {
		return
	}
	room, exists := m.rooms[c.RoomCode]
	if !exists {
		return
	}
	if !room.GameActive() {
		return
	}

	slot := room.SlotOf(c)
	if slot < 0 || slot != room.Turn {
		return
	}
	if index < 0 || index >= BoardSize {
		return
	}
	// 已佔用的格子永不被覆寫
	if room.Board[index] != CellEmpty {
		return
	}

	room.Board[index] = slot
	room.Turn = 1 - room.Turn

	if opp := room.Opponent(c); opp != nil {
		opp.Push(NewOpponentMove(index, slot).Encode())
	}
}

// RequestRematch 記錄再戰意願
//
// 再戰是雙邊握手：單方請求只會讓對手收到 rematch_requested，
// 請求方不會收到任何確認訊框（客戶端須自行顯示等待狀態）。
// 雙方旗標都立起時重置旗標與棋盤、先手還給房主，並啟動新一輪倒數。
//
// 服務器不驗證前一局是否真的結束（gameActive 仍為 true 也接受）：
// 勝負判定的唯一權威在客戶端。
func (m *Manager) RequestRematch(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.RoomCode == "" {
		return
	}
	room, exists := m.rooms[c.RoomCode]
	if !exists {
		return
	}

	opp := room.Opponent(c)
	if opp == nil {
		// 獨自一人沒有握手對象
		return
	}

	c.WantsRematch = true

	if !opp.WantsRematch {
		opp.Push(NewRematchRequested().Encode())
		return
	}

	c.WantsRematch = false
	opp.WantsRematch = false
	room.resetBoard()

	m.logger.Info("再戰開始", "code", room.Code)

	m.startCountdown(room)
}

// RemoveClient 將連線自其房間移除並關閉房間
//
// 倖存方恰好收到一次 opponent_left：成員資格在同一把鎖下清除，
// 之後任何重入（讀取幫浦退出、心跳終止）都找不到房間而直接返回。
// 沒有重連協議，房間不會留著等待歸隊的玩家，對等方離線即刪除。
func (m *Manager) RemoveClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.RoomCode == "" {
		return
	}
	room, exists := m.rooms[c.RoomCode]
	c.RoomCode = ""
	if !exists {
		return
	}

	// 刪除房間前先同步取消倒數，防止計時器打進已釋放的狀態
	m.cancelCountdown(room)

	for _, p := range room.Players {
		if p == c {
			continue
		}
		p.Push(NewOpponentLeft().Encode())
		p.RoomCode = ""
		p.WantsRematch = false
	}

	room.Players = nil
	room.Status = StatusClosed
	delete(m.rooms, room.Code)

	m.logger.Info("房間已關閉",
		"code", room.Code,
		"client_id", c.ID)
}

// startCountdown 啟動倒數（呼叫方必須持有 m.mu）
//
// 進入時立即廣播 countdown{3}，其後每秒一個 tick（2、1），
// 最後廣播 game_start 並轉入 active。已有倒數在跑時先取消再重啟。
func (m *Manager) startCountdown(room *Room) {
	m.cancelCountdown(room)

	room.Status = StatusCountingDown
	cd := &countdown{stop: make(chan struct{})}
	room.countdown = cd

	room.broadcast(NewCountdown(countdownStart))

	go m.runCountdown(room, cd)
}

// cancelCountdown 取消進行中的倒數（呼叫方必須持有 m.mu）
func (m *Manager) cancelCountdown(room *Room) {
	if room.countdown != nil {
		close(room.countdown.stop)
		room.countdown = nil
	}
}

// runCountdown 倒數計時器本體
//
// 每個 tick 重新取得儲存庫鎖，並確認自己仍是房間目前的倒數
// （取消與重啟都會換掉握把）。倖存檢查與狀態變更在同一把鎖下完成，
// 被取消的計時器不可能再廣播或改動房間。
func (m *Manager) runCountdown(room *Room, cd *countdown) {
	for count := countdownStart - 1; count >= 0; count-- {
		timer := time.NewTimer(countdownTick)
		select {
		case <-timer.C:
		case <-cd.stop:
			timer.Stop()
			return
		}

		m.mu.Lock()
		if room.countdown != cd {
			m.mu.Unlock()
			return
		}
		if count > 0 {
			room.broadcast(NewCountdown(count))
		} else {
			room.countdown = nil
			room.Status = StatusActive
			room.broadcast(NewGameStart())
			m.logger.Info("對戰開始", "code", room.Code)
		}
		m.mu.Unlock()
	}
}

// generateCode 產生未被使用的房間代碼（呼叫方必須持有 m.mu）
//
// 36^4 ≈ 168 萬組代碼，碰撞機率低，但房間結束後代碼會被重複使用，
// 仍必須逐一對照存活房間查核，碰撞就重新生成。
func (m *Manager) generateCode() (string, error) {
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeAlphabet[randInt(len(roomCodeAlphabet))]
		}
		code := string(b)
		if _, exists := m.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// randInt 生成隨機數
func randInt(max int) int {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間作為隨機源
		return int(time.Now().UnixNano()) % max
	}
	return int(b[0]) % max
}

// RoomState 回傳房間狀態快照（測試與除錯用）
//
// 在儲存庫鎖下複製，呼叫方拿到的是值拷貝，不會與倒數計時器競爭。
func (m *Manager) RoomState(code string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[strings.ToUpper(code)]
	if !exists {
		return nil, ErrRoomNotFound
	}

	return map[string]any{
		"code":        room.Code,
		"status":      room.Status,
		"turn":        room.Turn,
		"board":       room.Board,
		"players":     len(room.Players),
		"game_active": room.GameActive(),
	}, nil
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	statusCount := make(map[RoomStatus]int)
	totalPlayers := 0
	for _, room := range m.rooms {
		statusCount[room.Status]++
		totalPlayers += len(room.Players)
	}

	return map[string]any{
		"total_rooms":   len(m.rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}
