package ir

import (
	"slices"
	"strings"
)

// accessorTable maps a field name to its extraction function for one
// payload variant. Tables are built once at init and never mutated, so Get
// is a single map lookup instead of string dispatch over the variant.
type accessorTable[T any] map[string]func(*T) IRValue

// get resolves field against v. Unknown fields read as nil.
func (tbl accessorTable[T]) get(v *T, field string) IRValue {
	if v == nil {
		return nil
	}
	head, rest, nested := strings.Cut(field, ".")
	fn, ok := tbl[head]
	if !ok {
		return nil
	}
	val := fn(v)
	if !nested {
		return val
	}
	obj, ok := val.(IRObject)
	if !ok {
		return nil
	}
	return obj.Lookup(rest)
}

// fields returns the field names the table answers, unordered.
func (tbl accessorTable[T]) fields() []string {
	names := make([]string, 0, len(tbl))
	for name := range tbl {
		names = append(names, name)
	}
	return names
}

// withFacets adds the where and order_by accessors shared by every variant.
func withFacets[T any](facets func(*T) *Facets, tbl accessorTable[T]) accessorTable[T] {
	tbl["where"] = func(v *T) IRValue { return objectValue(facets(v).Where) }
	tbl["order_by"] = func(v *T) IRValue { return objectValue(facets(v).OrderBy) }
	return tbl
}

// objectValue returns obj as an IRValue, keeping a nil object untyped nil
// so IsNull and callers comparing against nil agree.
func objectValue(obj IRObject) IRValue {
	if obj == nil {
		return nil
	}
	return obj
}

// stringValue reads an empty string as null so optional text fields do not
// produce "<field>_" membership indices.
func stringValue(s string) IRValue {
	if s == "" {
		return nil
	}
	return IRString(s)
}

// intValue reads zero as null for optional integer fields.
func intValue(i int64) IRValue {
	if i == 0 {
		return nil
	}
	return IRInt(i)
}

var metaDataFields = withFacets(func(m *MetaData) *Facets { return &m.Facets }, accessorTable[MetaData]{
	"category": func(m *MetaData) IRValue { return stringValue(m.Category) },
	"state":    func(m *MetaData) IRValue { return stringValue(m.State) },
	"value":    func(m *MetaData) IRValue { return stringValue(m.Value) },
	"summary":  func(m *MetaData) IRValue { return stringValue(m.Summary) },
})

var proposalDataFields = withFacets(func(p *ProposalData) *Facets { return &p.Facets }, accessorTable[ProposalData]{
	"blockchain":    func(p *ProposalData) IRValue { return stringValue(p.Blockchain) },
	"proposal_id":   func(p *ProposalData) IRValue { return IRInt(p.ProposalID) },
	"title":         func(p *ProposalData) IRValue { return stringValue(p.Title) },
	"description":   func(p *ProposalData) IRValue { return stringValue(p.Description) },
	"status":        func(p *ProposalData) IRValue { return stringValue(p.Status) },
	"proposal_type": func(p *ProposalData) IRValue { return stringValue(p.ProposalType) },
	"submit_time":   func(p *ProposalData) IRValue { return intValue(p.SubmitTime) },
	"voting_start":  func(p *ProposalData) IRValue { return intValue(p.VotingStart) },
	"voting_end":    func(p *ProposalData) IRValue { return intValue(p.VotingEnd) },
	"link":          func(p *ProposalData) IRValue { return stringValue(p.Link) },
	"content_hash":  func(p *ProposalData) IRValue { return stringValue(p.ContentHash) },
})

var debugFields = withFacets(func(d *Debug) *Facets { return &d.Facets }, accessorTable[Debug]{
	"message": func(d *Debug) IRValue { return stringValue(d.Message) },
})

var errorDataFields = withFacets(func(e *ErrorData) *Facets { return &e.Facets }, accessorTable[ErrorData]{
	"message": func(e *ErrorData) IRValue { return stringValue(e.Message) },
})

var logFields = withFacets(func(l *Log) *Facets { return &l.Facets }, accessorTable[Log]{
	"message": func(l *Log) IRValue { return stringValue(l.Message) },
})

// Get implements CustomData.
func (m *MetaData) Get(field string) IRValue { return metaDataFields.get(m, field) }

// Get implements CustomData.
func (p *ProposalData) Get(field string) IRValue { return proposalDataFields.get(p, field) }

// Get implements CustomData.
func (d *Debug) Get(field string) IRValue { return debugFields.get(d, field) }

// Get implements CustomData.
func (e *ErrorData) Get(field string) IRValue { return errorDataFields.get(e, field) }

// Get implements CustomData.
func (l *Log) Get(field string) IRValue { return logFields.get(l, field) }

// FieldNames returns the sorted field names answered by a payload kind,
// or nil for an unknown kind.
func FieldNames(kind DataKind) []string {
	var names []string
	switch kind {
	case KindMetaData:
		names = metaDataFields.fields()
	case KindProposalData:
		names = proposalDataFields.fields()
	case KindDebug:
		names = debugFields.fields()
	case KindError:
		names = errorDataFields.fields()
	case KindLog:
		names = logFields.fields()
	default:
		return nil
	}
	slices.Sort(names)
	return names
}
