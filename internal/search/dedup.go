package search

// Dedup 一次编排调用内的已见标识集合。
//
// 每个范围各持一份，随调用创建与丢弃，从不进入缓存键。
// 空标识永远视为"未见过"：此类记录不会被去重排除，跨层级或
// 跨文件夹时可能产生重复，这是沿袭来源的已记录行为（DESIGN.md）。
type Dedup struct {
	seen map[string]struct{}
}

// NewDedup 创建空的去重集合。
func NewDedup() *Dedup {
	return &Dedup{seen: map[string]struct{}{}}
}

// Seen 报告标识是否已见过。
func (d *Dedup) Seen(id string) bool {
	if id == "" {
		return false
	}
	_, ok := d.seen[id]
	return ok
}

// Add 记录一个标识。空标识被忽略。
func (d *Dedup) Add(id string) {
	if id == "" {
		return
	}
	d.seen[id] = struct{}{}
}

// Len 已记录的标识数。
func (d *Dedup) Len() int {
	return len(d.seen)
}
