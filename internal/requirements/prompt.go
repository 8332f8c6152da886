package requirements

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const systemPrompt = `你是一個自動化系統需求分析專家。請從訪談逐字稿中提取結構化的需求資訊。

規則：
1. 只提取逐字稿中明確提到的資訊，不要發明數據
2. 如果某個欄位未知，設為 null 並加入 open_questions 清單
3. 使用繁體中文（台灣用法）填寫所有文字欄位
4. 對於每個提取的欄位，提供證據片段（snippet）和位置資訊
5. 為每個主要區塊提供信心分數（0-1）

輸出格式必須是 JSON，包含：
- requirements: 提取的需求結構
- confidence: 各區塊的信心分數
- evidence: 證據列表，每個包含 field_path, snippet, start_char, end_char`

const userPromptTemplate = `請從以下訪談逐字稿中提取自動化系統需求：

%s

請提取以下結構的需求資訊：
- customer_pain_points: 客戶痛點（陣列）
- products: 產品資訊（物件，包含 name, material, dimensions, variety 等）
- workpiece: 工件資訊（物件，包含 weight_range, dimensions, material, shape 等）
- process: 製程資訊（物件，包含 count, steps, needs_flip, current_method 等）
- cycle_time: 週期時間（物件，包含 current, target, unit 等）
- layout: 佈局資訊（物件，包含 space_constraints, existing_equipment, floor_area 等）
- constraints: 限制條件（物件，包含 budget, timeline, technical, safety 等）
- options: 選項偏好（物件，包含 robot_type, automation_level, vision, scheduler 等）
- acceptance: 驗收標準（物件，包含 criteria, tests 等）
- open_questions: 開放問題（陣列）
另外請填寫 machines.count（所需機台或機器人數量），未知時設為 null。

請以 JSON 格式回應，包含 requirements, confidence, evidence 三個主要欄位。`

// SystemPrompt is the fixed instruction sent with every extraction.
func SystemPrompt() string { return systemPrompt }

// UserPrompt embeds the transcript into the extraction request.
func UserPrompt(transcript string) string {
	return fmt.Sprintf(userPromptTemplate, transcript)
}

// PromptHash fingerprints the exact user prompt sent to the model.
func PromptHash(userPrompt string) string {
	sum := sha256.Sum256([]byte(userPrompt))
	return hex.EncodeToString(sum[:])
}
