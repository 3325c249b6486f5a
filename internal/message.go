package internal

import (
	"encoding/json"
	"fmt"
)

// 系統設計問題：
//   如何定義客戶端與服務器之間的訊息協議？
//
// 設計方案：
//   ✅ 帶 type 判別欄位的 JSON 訊框（與現有客戶端相容）
//   ✅ 每個方向一個訊息型別，路由時窮舉匹配
//   ✅ 未知或格式錯誤的訊框直接丟棄（記錄日誌，不回傳錯誤）

// 訊息類型（客戶端 → 服務器）
const (
	TypeCreateRoom     = "create_room"
	TypeJoinRoom       = "join_room"
	TypeMove           = "move"
	TypeRequestRematch = "request_rematch"
	TypeGameOver       = "game_over" // 勝負由客戶端判定，服務器僅接受不處理
)

// 訊息類型（服務器 → 客戶端）
const (
	TypeRoomCreated      = "room_created"
	TypeJoinedRoom       = "joined_room"
	TypePlayerJoined     = "player_joined"
	TypeCountdown        = "countdown"
	TypeGameStart        = "game_start"
	TypeOpponentMove     = "opponent_move"
	TypeRematchRequested = "rematch_requested"
	TypeOpponentLeft     = "opponent_left"
	TypeError            = "error"
)

// UserData 玩家公開資料（名稱與頭像符號）
type UserData struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// 客戶端未附帶 userData 時的預設值
var (
	defaultHostData  = UserData{Name: "Player 1", Avatar: "😎"}
	defaultGuestData = UserData{Name: "Player 2", Avatar: "🤠"}
)

// ClientMessage 入站訊息信封
//
// 所有客戶端訊框共用一個信封結構：
//   - Type 為判別欄位（必填）
//   - 其餘欄位依訊息類型選用，未使用的欄位保持零值
//   - Index 使用指標以區分「缺少欄位」與「index: 0」
type ClientMessage struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"roomId,omitempty"`
	Index    *int      `json:"index,omitempty"`
	UserData *UserData `json:"userData,omitempty"`
}

// ParseClientMessage 解析入站訊框
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析訊框失敗: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("訊框缺少 type 欄位")
	}
	return &msg, nil
}

// HostData 回傳建房方的玩家資料，缺省時使用預設值
func (m *ClientMessage) HostData() UserData {
	if m.UserData != nil {
		return *m.UserData
	}
	return defaultHostData
}

// GuestData 回傳加入方的玩家資料，缺省時使用預設值
func (m *ClientMessage) GuestData() UserData {
	if m.UserData != nil {
		return *m.UserData
	}
	return defaultGuestData
}

// ServerMessage 出站訊息
//
// Count / Index / Player 使用指標：這些欄位的合法值包含 0，
// 不能靠 omitempty 區分「未設定」與「零值」。
type ServerMessage struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"roomId,omitempty"`
	Opponent *UserData `json:"opponent,omitempty"`
	Count    *int      `json:"count,omitempty"`
	Index    *int      `json:"index,omitempty"`
	Player   *int      `json:"player,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Encode 序列化為 JSON 訊框
func (m ServerMessage) Encode() []byte {
	data, _ := json.Marshal(m)
	return data
}

// NewRoomCreated 房間建立成功（回傳給建房方）
func NewRoomCreated(roomID string) ServerMessage {
	return ServerMessage{Type: TypeRoomCreated, RoomID: roomID}
}

// NewJoinedRoom 加入成功（回傳給加入方，附帶房主資料）
func NewJoinedRoom(roomID string, opponent UserData) ServerMessage {
	return ServerMessage{Type: TypeJoinedRoom, RoomID: roomID, Opponent: &opponent}
}

// NewPlayerJoined 對手已加入（通知房主，附帶訪客資料）
func NewPlayerJoined(opponent UserData) ServerMessage {
	return ServerMessage{Type: TypePlayerJoined, Opponent: &opponent}
}

// NewCountdown 倒數訊息（廣播給雙方）
func NewCountdown(count int) ServerMessage {
	return ServerMessage{Type: TypeCountdown, Count: &count}
}

// NewGameStart 對戰開始（廣播給雙方）
func NewGameStart() ServerMessage {
	return ServerMessage{Type: TypeGameStart}
}

// NewOpponentMove 對手落子（只發給對手，不回送給落子方）
func NewOpponentMove(index, player int) ServerMessage {
	return ServerMessage{Type: TypeOpponentMove, Index: &index, Player: &player}
}

// NewRematchRequested 對手請求再戰（只發給對手）
func NewRematchRequested() ServerMessage {
	return ServerMessage{Type: TypeRematchRequested}
}

// NewOpponentLeft 對手離線（只發給倖存方）
func NewOpponentLeft() ServerMessage {
	return ServerMessage{Type: TypeOpponentLeft}
}

// NewErrorMessage 錯誤訊息（回傳給請求方）
func NewErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}
