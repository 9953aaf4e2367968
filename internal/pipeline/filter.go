package pipeline

import (
	"strings"

	"github.com/sells-group/outlet-cli/internal/model"
)

// FilterLocality keeps outlets whose address contains token, in input
// order. Matching is a case-sensitive substring test. Outlets whose source
// carried no address are always excluded; an empty token keeps every
// outlet that has one. Retained outlets are returned unchanged.
func FilterLocality(outlets []model.Outlet, token string) []model.Outlet {
	kept := make([]model.Outlet, 0, len(outlets))
	for _, o := range outlets {
		if !o.HasAddress {
			continue
		}
		if strings.Contains(o.Address, token) {
			kept = append(kept, o)
		}
	}
	return kept
}
