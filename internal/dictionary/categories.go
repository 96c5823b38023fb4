// Package dictionary holds the curated default categories seeded into a
// fresh ledger.
package dictionary

// Group buckets default categories for display.
type Group string

const (
	GroupDaily  Group = "daily"
	GroupFixed  Group = "fixed"
	GroupIncome Group = "income"
	GroupOther  Group = "other"
)

type CategoryDef struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Group       Group  `json:"group"`
}

var curated = map[Group][]CategoryDef{
	GroupDaily: {
		{Name: "Ăn uống", Icon: "🍜", Description: "Chi tiêu ăn uống, nhà hàng, cafe"},
		{Name: "Di chuyển", Icon: "🚗", Description: "Xăng xe, grab, taxi, xe buýt"},
		{Name: "Mua sắm", Icon: "🛒", Description: "Quần áo, đồ dùng cá nhân"},
		{Name: "Giải trí", Icon: "🎮", Description: "Xem phim, game, du lịch"},
		{Name: "Sức khỏe", Icon: "💊", Description: "Thuốc, khám bệnh, gym"},
		{Name: "Giáo dục", Icon: "📚", Description: "Học phí, sách vở, khóa học"},
	},
	GroupFixed: {
		{Name: "Nhà ở", Icon: "🏠", Description: "Tiền thuê nhà, điện nước"},
		{Name: "Điện thoại/Internet", Icon: "📱", Description: "Cước điện thoại, wifi"},
		{Name: "Bảo hiểm", Icon: "🛡️", Description: "Bảo hiểm y tế, xe, nhân thọ"},
	},
	GroupIncome: {
		{Name: "Lương", Icon: "💰", Description: "Lương tháng, thưởng"},
		{Name: "Freelance", Icon: "💻", Description: "Thu nhập từ công việc tự do"},
		{Name: "Đầu tư", Icon: "📈", Description: "Lãi đầu tư, cổ tức"},
		{Name: "Quà tặng", Icon: "🎁", Description: "Tiền mừng, quà tặng"},
	},
	GroupOther: {
		{Name: "Nợ/Vay", Icon: "💳", Description: "Cho vay, đi vay, trả nợ"},
		{Name: "Khác", Icon: "📦", Description: "Chi tiêu không phân loại"},
	},
}

var order = []Group{GroupDaily, GroupFixed, GroupIncome, GroupOther}

// Defaults returns every curated category in seed order.
func Defaults() []CategoryDef {
	out := make([]CategoryDef, 0)
	for _, g := range order {
		for _, d := range curated[g] {
			d.Group = g
			out = append(out, d)
		}
	}
	return out
}

// CategoriesFor returns the curated categories of a group, or all of them
// when g is nil.
func CategoriesFor(g *Group) []CategoryDef {
	if g == nil {
		return Defaults()
	}
	out := make([]CategoryDef, 0, len(curated[*g]))
	for _, d := range curated[*g] {
		d.Group = *g
		out = append(out, d)
	}
	return out
}
