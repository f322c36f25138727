package probes

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jamienicol/xbench/internal/runner"
)

// performanceEntriesScript serializes every paint and mark
// PerformanceEntry of the page. Serializing in the page keeps the
// wire format independent of the browser bridge's JSON decoding.
const performanceEntriesScript = `
  let data = { __proto__: null, paint: {}, mark: {} };
  for (let entryType of Object.keys(data)) {
    for (let entry of performance.getEntriesByType(entryType)) {
      const typeData = data[entryType];
      let values = typeData[entry.name];
      if (values === undefined) {
        values = typeData[entry.name] = { startTime: [], duration: [] };
      }
      for (let metricName of Object.keys(values)) {
        values[metricName].push(entry[metricName]);
      }
    }
  }
  return JSON.stringify(data);
`

// NewPerformanceEntriesProbe extracts the page's PerformanceEntry
// records (paint timings plus performance.mark calls). Website owners
// add their own entries via performance.mark().
func NewPerformanceEntriesProbe() *JSONProbe {
	p := NewJSONProbe("performance.entries", extractPerformanceEntries)
	return p
}

func extractPerformanceEntries(ctx context.Context, run *runner.Run) (any, error) {
	a := run.Actions("read performance entries")
	var err error
	defer a.Close(&err)

	var result any
	result, err = a.JS(ctx, performanceEntriesScript, 10*time.Second)
	if err != nil {
		return nil, err
	}
	raw, ok := result.(string)
	if !ok {
		err = fmt.Errorf("probes: performance entries script returned %T, want string", result)
		return nil, err
	}
	if !gjson.Valid(raw) {
		err = fmt.Errorf("probes: performance entries script returned invalid JSON")
		return nil, err
	}
	doc := map[string]any{}
	for _, entryType := range []string{"paint", "mark"} {
		entries := gjson.Get(raw, entryType)
		if !entries.Exists() {
			continue
		}
		doc[entryType] = entries.Value()
	}
	return doc, nil
}
