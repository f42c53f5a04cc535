package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"plancost/internal/errors"
)

// ResourceRecord is the raw wire form of one resource in a plan artifact
type ResourceRecord struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Region     string            `json:"region"`
	Attributes map[string]string `json:"attributes"`
}

// Document is a decoded plan artifact
type Document struct {
	FormatVersion string           `json:"format_version,omitempty"`
	Resources     []ResourceRecord `json:"resources"`
}

// Load reads and normalizes a plan artifact from disk
func Load(path string) ([]Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeMalformedPlan, fmt.Sprintf("cannot open plan %s", path), err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a plan artifact from r and normalizes it. The artifact
// is either a document with a "resources" array or a bare array of
// resource records.
func Decode(r io.Reader) ([]Resource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.TypeMalformedPlan, "cannot read plan", err)
	}

	doc := &Document{}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &doc.Resources); err != nil {
			return nil, errors.Wrap(errors.TypeMalformedPlan, "invalid plan JSON", err)
		}
	} else {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, errors.Wrap(errors.TypeMalformedPlan, "invalid plan JSON", err)
		}
	}

	return Normalize(doc)
}

// Normalize converts raw records into validated resources, preserving
// record order. It fails on the first malformed record: a missing id,
// kind, or region, an unrecognized kind, an attribute outside the
// kind's schema, or a duplicate id.
func Normalize(doc *Document) ([]Resource, error) {
	if doc == nil || len(doc.Resources) == 0 {
		return nil, errors.MalformedPlan("plan contains no resources")
	}

	resources := make([]Resource, 0, len(doc.Resources))
	seen := make(map[string]bool, len(doc.Resources))

	for i, rec := range doc.Resources {
		if rec.ID == "" {
			return nil, errors.Newf(errors.TypeMalformedPlan, "resource %d: missing id", i)
		}
		if rec.Kind == "" {
			return nil, errors.Newf(errors.TypeMalformedPlan, "resource %s: missing kind", rec.ID)
		}
		kind, ok := ParseKind(rec.Kind)
		if !ok {
			return nil, errors.Newf(errors.TypeMalformedPlan, "resource %s: unrecognized kind %q", rec.ID, rec.Kind)
		}
		if rec.Region == "" {
			return nil, errors.Newf(errors.TypeMalformedPlan, "resource %s: missing region", rec.ID)
		}
		if seen[rec.ID] {
			return nil, errors.Newf(errors.TypeMalformedPlan, "duplicate resource id %q", rec.ID)
		}
		seen[rec.ID] = true

		attrs := rec.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		if err := schemas[kind].validate(attrs); err != nil {
			return nil, errors.Newf(errors.TypeMalformedPlan, "resource %s: %v", rec.ID, err)
		}

		resources = append(resources, Resource{
			ID:         rec.ID,
			Kind:       kind,
			Region:     rec.Region,
			Attributes: attrs,
		})
	}

	return resources, nil
}

// Filter returns the resources matching the given kind, preserving
// order. An empty kind returns the input unchanged.
func Filter(resources []Resource, kind Kind) []Resource {
	if kind == "" {
		return resources
	}
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
