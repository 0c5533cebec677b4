package chatstream

// UnitCost 计算一段文本的 usage unit 成本：
// CJK 统一表意文字 (U+4E00–U+9FFF) 每字符计 2 unit，其余字符计 1 unit。
func UnitCost(s string) int64 {
	var cost int64
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			cost += 2
		} else {
			cost++
		}
	}
	return cost
}

// Exceeds 配额预检判断：已用量加上预估成本达到或超过配额即拒绝。
func Exceeds(used, total, estimated int64) bool {
	return used+estimated >= total
}
