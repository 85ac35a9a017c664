package bidi

import "encoding/json"

// eventScope holds the places an event can name its browsing context.
type eventScope struct {
	Context   *string `json:"context"`
	Navigable *string `json:"navigable"`
	Source    *struct {
		Context *string `json:"context"`
	} `json:"source"`
	Realm *struct {
		Context *string `json:"context"`
	} `json:"realm"`
}

// extractContext finds the browsing context an event concerns. Params that do
// not name one, or name it in an unexpected shape, yield the zero id.
func extractContext(params json.RawMessage) BrowsingContextID {
	if len(params) == 0 {
		return BrowsingContextID{}
	}
	var scope eventScope
	if err := json.Unmarshal(params, &scope); err != nil {
		return BrowsingContextID{}
	}

	candidates := []*string{scope.Context, scope.Navigable}
	if scope.Source != nil {
		candidates = append(candidates, scope.Source.Context)
	}
	if scope.Realm != nil {
		candidates = append(candidates, scope.Realm.Context)
	}
	for _, c := range candidates {
		if c != nil && *c != "" {
			return BrowsingContextID{value: *c}
		}
	}
	return BrowsingContextID{}
}
