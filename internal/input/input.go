// Package input implements work-item extraction from a JSON file plus
// a JSONPath-style expression, and the generated-input providers used
// when a job has no file-backed input. Grounded on no single teacher
// file (the teacher has no input-descriptor concept); the path-query
// engine is `github.com/itchyny/gojq`, present across the retrieval
// pack, used here purely as a jq/JSONPath-capable query evaluator
// rather than for its usual filter-pipeline role.
package input

import (
	"encoding/json"
	"os"

	"github.com/itchyny/gojq"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// ExtractFromFile reads a JSON file and applies a gojq-compatible path
// expression (e.g. ".items[]") to it, producing one WorkItem per
// emitted value, numbered by emission order.
func ExtractFromFile(path, pathExpr string) ([]job.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, err, "read input file %s", path)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ferrors.Wrap(ferrors.KindSerialization, err, "parse input file %s", path)
	}

	return ExtractFromValue(doc, pathExpr)
}

// ExtractFromValue applies pathExpr to an already-decoded JSON value.
func ExtractFromValue(doc any, pathExpr string) ([]job.WorkItem, error) {
	query, err := gojq.Parse(pathExpr)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindValidationFailed, err, "parse path expression %q", pathExpr)
	}

	iter := query.Run(doc)
	var items []job.WorkItem
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, ferrors.Wrap(ferrors.KindValidationFailed, err, "evaluate path expression %q", pathExpr)
		}

		data, err := json.Marshal(v)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindSerialization, err, "marshal extracted item %d", len(items))
		}
		items = append(items, job.WorkItem{ID: job.ItemIDForIndex(len(items)), Data: data})
	}

	return items, nil
}
