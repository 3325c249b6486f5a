package internal

import (
	"time"
)

// 系統設計問題：
//   如何管理雙人對戰房間的生命週期，同步倒數開局，並中繼每一步棋？
//
// 核心挑戰：
//   1. 狀態管理：房間有明確的狀態轉換（forming → counting_down → active）
//   2. 回合完整性：回合順序是服務器唯一保證的完整性屬性
//   3. 倒數同步：雙方到齊後以 3 秒倒數閘控開局
//   4. 對等離線：任一方離線即終結對戰，倖存方恰好收到一次通知
//
// 設計方案：
//   ✅ 有限狀態機（FSM）- 規範狀態轉換
//   ✅ 儲存庫層級單一互斥鎖 - 房間數少、訊息率低，不做細粒度鎖
//   ✅ 倒數計時器握把 - 離線時同步取消，避免計時器打進已釋放的狀態

// RoomStatus 房間狀態
//
// 有限狀態機設計：
//
//	forming → counting_down → active → counting_down（再戰）→ …
//	任何狀態 → closed（對等方離線）
//
// 狀態轉換規則：
//   - forming → counting_down：第二位玩家加入
//   - counting_down → active：倒數結束（3, 2, 1 → game_start）
//   - active → counting_down：雙方都請求再戰
//   - closed 為終態：房間自儲存庫刪除
//
// 勝負不在狀態機內：服務器不判定勝負，由客戶端從落子串流自行推導，
// 再戰請求在 active 狀態下隨時接受。
type RoomStatus string

const (
	StatusForming      RoomStatus = "forming"       // 等待第二位玩家
	StatusCountingDown RoomStatus = "counting_down" // 倒數中，尚不接受落子
	StatusActive       RoomStatus = "active"        // 對戰中，接受落子
	StatusClosed       RoomStatus = "closed"        // 房間已關閉
)

const (
	// BoardSize 棋盤格數（3×3）
	BoardSize = 9

	// CellEmpty 空格標記；非空格記錄落子方的位置索引（0 或 1）
	CellEmpty = -1
)

// countdown 倒數計時器握把
//
// 關閉 stop 即取消；計時器本體每個 tick 會重新確認
// 自己仍是房間目前的倒數，取消後絕不再觸碰房間狀態。
type countdown struct {
	stop chan struct{}
}

// Room 雙人對戰房間
//
// 所有欄位都由 Manager 的互斥鎖保護：房間只會被兩位成員的
// 事件處理器與倒數計時器觸及，不另設房間層級的鎖。
//
// 位置 0 = 房主（X），位置 1 = 訪客（O）；房主永遠先手，再戰亦然。
type Room struct {
	Code      string         // 4 位大寫 base-36 房間代碼
	Players   []*Client      // 至多 2 條成員連線（不擁有，擁有權在註冊表）
	Turn      int            // 下一手的位置索引（0 或 1）
	Board     [BoardSize]int // 已驗證落子的寫入一次投影
	Status    RoomStatus
	CreatedAt time.Time

	countdown *countdown // 進行中的倒數，沒有則為 nil
}

// NewRoom 建立新房間，房主佔據 0 號位
func NewRoom(code string, host *Client) *Room {
	r := &Room{
		Code:      code,
		Players:   make([]*Client, 0, 2),
		Status:    StatusForming,
		CreatedAt: time.Now(),
	}
	r.Players = append(r.Players, host)
	r.resetBoard()
	return r
}

// resetBoard 清空棋盤並將先手還給房主
func (r *Room) resetBoard() {
	for i := range r.Board {
		r.Board[i] = CellEmpty
	}
	r.Turn = 0
}

// GameActive 是否接受落子
//
// 房間成形期間與倒數期間為 false，倒數結束後才為 true；
// 再戰開始時重新變回 false，直到新一輪倒數結束。
func (r *Room) GameActive() bool {
	return r.Status == StatusActive
}

// IsFull 房間是否已滿（恆為至多 2 人）
func (r *Room) IsFull() bool {
	return len(r.Players) >= 2
}

// SlotOf 回傳連線在房間中的位置索引，不在房間內回傳 -1
func (r *Room) SlotOf(c *Client) int {
	for i, p := range r.Players {
		if p == c {
			return i
		}
	}
	return -1
}

// Opponent 回傳對手連線，對手不存在時回傳 nil
func (r *Room) Opponent(c *Client) *Client {
	for _, p := range r.Players {
		if p != c {
			return p
		}
	}
	return nil
}

// broadcast 將訊息發給房內所有成員
//
// 倒數與 game_start 是僅有的全房廣播；對局訊框（落子、再戰請求）
// 一律只發給對手，不回送給發送方。
func (r *Room) broadcast(msg ServerMessage) {
	data := msg.Encode()
	for _, p := range r.Players {
		p.Push(data)
	}
}
