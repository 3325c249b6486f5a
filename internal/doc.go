// Package internal 實現 TicTacMoji 的即時對戰信令服務器。
//
// 這是一個小型有狀態中繼：讓恰好兩位遠端玩家透過 4 位房間代碼
// 互相發現、以倒數閘控同步開局、逐步中繼落子，並協調雙邊再戰握手。
// 勝負判定、棋盤呈現等一切表現層邏輯都在客戶端，服務器只保證
// 回合順序這一項完整性屬性。
//
// # 組件
//
//   - Registry：追蹤每一條存活連線與其心跳活性（30 秒 mark-then-terminate 掃描）
//   - Manager：房間儲存庫，代碼 → 房間映射、回合驗證、倒數生命週期
//   - Hub：WebSocket 升級與訊框路由（讀寫幫浦、單一 teardown 路徑）
//   - Handler：HTTP 介面，僅 GET /health，其餘一律 404
//
// # 協議
//
// 傳輸為文字 JSON 訊框，type 欄位判別。客戶端 → 服務器：
// create_room、join_room、move、request_rematch。服務器 → 客戶端：
// room_created、joined_room、player_joined、countdown、game_start、
// opponent_move、rematch_requested、opponent_left、error。
//
// # 併發模型
//
// 儲存庫層級單一互斥鎖序列化所有房間操作；持鎖期間不做網路 I/O，
// 出站訊框只是非阻塞入列。倒數計時器以獨立 goroutine 運行，
// 每個 tick 重新取鎖並確認自己未被取消。
//
// 不做的事：進程重啟後的持久化、多實例房間共享、身份驗證、觀戰、
// 斷線重連（一方離線即終結對戰）。
package internal
