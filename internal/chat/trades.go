package chat

// Trade is one entry of the trades catalog shown on the landing page.
type Trade struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Active    bool   `json:"active"`
	Assistant string `json:"assistant,omitempty"`
}

var trades = []Trade{
	{Name: "Menuiserie", Path: "/menuiserie", Active: true, Assistant: "menuiserie"},
	{Name: "Plomberie"},
	{Name: "Électricité"},
	{Name: "Maçonnerie"},
	{Name: "Charpenterie"},
	{Name: "Couverture"},
	{Name: "Plâtrerie"},
	{Name: "Peinture"},
	{Name: "Carrelage"},
	{Name: "Chauffage"},
	{Name: "Climatisation"},
	{Name: "Isolation"},
	{Name: "Serrurerie"},
	{Name: "Métallerie"},
	{Name: "Vitrerie"},
	{Name: "Parqueteur"},
	{Name: "Ravalement"},
	{Name: "Terrassement"},
	{Name: "VRD"},
	{Name: "Zinguerie"},
	{Name: "Étanchéité"},
	{Name: "Façadier"},
}

// Trades returns a copy of the catalog in display order. Inactive trades link to "#".
func Trades() []Trade {
	out := make([]Trade, len(trades))
	for i, t := range trades {
		if t.Path == "" {
			t.Path = "#"
		}
		out[i] = t
	}
	return out
}
