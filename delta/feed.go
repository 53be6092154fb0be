package delta

import "fmt"

// Feed is the synthesized delta response body (spec §4.7).
type Feed struct {
	Context   string           `json:"@context"`
	DeltaLink string           `json:"@deltaLink"`
	Value     []map[string]any `json:"value"`
}

// GenerateDeltaResponse synthesizes the delta feed for every change on
// resource since sinceTS, plus a fresh delta link stamped at nowTS.
func (t *Tracker) GenerateDeltaResponse(baseURL, resource string, sinceTS, nowTS int64) Feed {
	events := t.GetChanges(resource, sinceTS)
	values := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		entry := map[string]any{
			"@id":        fmt.Sprintf("%s(%d)", resource, ev.EntityID),
			"@etag":      ev.Timestamp,
			"@operation": string(ev.Operation),
		}
		for k, v := range ev.Data {
			entry[k] = v
		}
		values = append(values, entry)
	}
	return Feed{
		Context:   fmt.Sprintf("%s/$metadata#%s", baseURL, resource),
		DeltaLink: GenerateDeltaLink(baseURL, resource, nowTS, "", ""),
		Value:     values,
	}
}
