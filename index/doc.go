// Package index implements the segmented, mergeable inverted index: full
// text postings with positions, fast per-document columnar fields, and
// the pattern query's ordered-token/anchor matching.
package index

import "fmt"

// DocAddress is the unique handle for a document within one searcher's
// segment list: a position in that list plus the doc's id within the
// segment. doc_id is dense within a segment and never reused, but
// segment_ord is only stable for the searcher that produced it.
type DocAddress struct {
	SegmentOrd uint32
	DocID      uint32
}

func (a DocAddress) String() string {
	return fmt.Sprintf("%d:%d", a.SegmentOrd, a.DocID)
}

// Field identifies a text or fast field within a segment's schema.
type Field uint8

const (
	FieldTitle Field = iota
	FieldCleanBody
	FieldUrl
	FieldDomain
	FieldSite
	FieldDescription
	FieldFlattenedSchemaOrgJson
	numFields
)

var fieldNames = [numFields]string{
	FieldTitle:                  "title",
	FieldCleanBody:              "clean_body",
	FieldUrl:                    "url",
	FieldDomain:                 "domain",
	FieldSite:                   "site",
	FieldDescription:            "description",
	FieldFlattenedSchemaOrgJson: "flattened_schema_org_json",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "unknown"
}

// Document is a single document's fields as given at insert time. Each
// text field is tokenized by an external Tokenizer into a
// position-bearing stream before being committed into a segment.
type Document struct {
	Fields map[Field]string
}
