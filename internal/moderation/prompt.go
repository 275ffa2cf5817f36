package moderation

import (
	"strings"
)

const emptyHistoryPlaceholder = "（暂无历史对话）"

const promptTemplate = `你是一个专门负责检测和干预异常对话的AI助手。请仔细分析对话内容，特别关注最近的对话上下文，并严格按照要求的JSON格式输出。

历史对话上下文:
{{history}}

当前消息:
{{message}}

需要识别的异常行为类型：
1. 不当用语或辱骂
2. 人身攻击
3. 不当情绪表达
4. 打断或干扰他人发言
5. 偏离学习主题
6. 消极、不配合的态度或自伤倾向

如果检测到攻击行为，请判断攻击者和被攻击者（使用对话中的用户名），并分别生成三条回应：
- to_attacker：礼貌但坚定地指出攻击者的问题并进行干预
- to_victim：对被攻击者表示关心和支持
- to_others：提醒其他成员维护良好的交流氛围
如果检测到自伤倾向，回应要给出关怀和求助建议。

请直接输出以下格式的JSON（不要包含任何其他内容）:
{
    "is_anomaly": true/false,
    "reason": "检测到异常时说明原因，没有异常则留空",
    "analysis": {
        "attacker": "攻击者用户名，没有则留空",
        "victim": "被攻击者用户名，没有则留空"
    },
    "responses": {
        "to_attacker": "给攻击者的回应",
        "to_victim": "给被攻击者的回应",
        "to_others": "给其他成员的回应"
    }
}

注意：
1. 只输出一个JSON对象，不要有其他文字
2. 不要包含<think>等标记
3. JSON中的布尔值必须是true或false，不要使用引号
4. reason在没有异常时应为空字符串
`

// BuildPrompt renders the classification prompt. history holds the turns
// before message and must not contain message itself.
func BuildPrompt(history, message string) string {
	if strings.TrimSpace(history) == "" {
		history = emptyHistoryPlaceholder
	}
	r := strings.NewReplacer("{{history}}", history, "{{message}}", message)
	return r.Replace(promptTemplate)
}
