package httpapi

import (
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// searchSpec is the JSON shape accepted by the ?search={json} and
// ?searchFirst={json} query-string parameters: conditions plus optional
// joinFetch/orderBy/offset/limit.
type searchSpec struct {
	Conditions predicateDTO   `json:"conditions"`
	JoinFetch  []joinFetchDTO `json:"joinFetch,omitempty"`
	OrderBy    string         `json:"orderBy,omitempty"`
	Offset     int            `json:"offset,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

// predicateDTO is the wire shape of model.Predicate — a tagged value
// identical in field set to the internal type, kept as its own type so
// the wire format doesn't change silently if the internal type grows an
// unexported or differently-tagged field.
type predicateDTO struct {
	Op     model.PredicateOp `json:"op,omitempty"`
	Field  string            `json:"field,omitempty"`
	Value  interface{}       `json:"value,omitempty"`
	Values []interface{}     `json:"values,omitempty"`
	And    []predicateDTO    `json:"and,omitempty"`
	Or     []predicateDTO    `json:"or,omitempty"`
}

func (d predicateDTO) toPredicate() model.Predicate {
	p := model.Predicate{Op: d.Op, Field: d.Field, Value: d.Value, Values: d.Values}
	for _, sub := range d.And {
		p.And = append(p.And, sub.toPredicate())
	}
	for _, sub := range d.Or {
		p.Or = append(p.Or, sub.toPredicate())
	}
	return p
}

// joinFetchDTO mirrors query.JoinFetch's field set.
type joinFetchDTO struct {
	OtherTable string         `json:"otherTable"`
	ThisTable  string         `json:"thisTable,omitempty"`
	ThisField  string         `json:"thisField,omitempty"`
	OtherField string         `json:"otherField,omitempty"`
	Type       query.JoinType `json:"type"`
	Name       string         `json:"name,omitempty"`
	JoinSearch predicateDTO   `json:"joinSearch,omitempty"`
	Joins      []joinFetchDTO `json:"joins,omitempty"`
	OrderBy    string         `json:"orderBy,omitempty"`
}

func (d joinFetchDTO) toJoinFetch() query.JoinFetch {
	jf := query.JoinFetch{
		OtherTable: d.OtherTable,
		ThisTable:  d.ThisTable,
		ThisField:  d.ThisField,
		OtherField: d.OtherField,
		Type:       d.Type,
		Name:       d.Name,
		JoinSearch: d.JoinSearch.toPredicate(),
		OrderBy:    d.OrderBy,
	}
	for _, sub := range d.Joins {
		jf.Joins = append(jf.Joins, sub.toJoinFetch())
	}
	return jf
}

func toJoinFetches(dtos []joinFetchDTO) []query.JoinFetch {
	if len(dtos) == 0 {
		return nil
	}
	out := make([]query.JoinFetch, len(dtos))
	for i, d := range dtos {
		out[i] = d.toJoinFetch()
	}
	return out
}

func (s searchSpec) toSelectSpec(table string) query.SelectSpec {
	return query.SelectSpec{
		Table:     table,
		Predicate: s.Conditions.toPredicate(),
		HasFilter: true,
		OrderBy:   s.OrderBy,
		Offset:    s.Offset,
		Limit:     s.Limit,
		Joins:     toJoinFetches(s.JoinFetch),
	}
}

// changeDTO is the wire shape of one model.Change entry, for
// transactionalChanges and the multipart-embedded sync upload.
type changeDTO struct {
	Table      string             `json:"table"`
	Action     model.ChangeAction `json:"action"`
	Record     model.Record       `json:"record,omitempty"`
	Conditions []predicateDTO     `json:"conditions,omitempty"`
}

func (d changeDTO) toChange() model.Change {
	ch := model.Change{Table: d.Table, Action: d.Action, Record: d.Record}
	for _, c := range d.Conditions {
		ch.Conditions = append(ch.Conditions, c.toPredicate())
	}
	return ch
}

// changeSetDTO is the wire shape of model.ChangeSet (the multipart
// "changes" field of POST /sync).
type changeSetDTO struct {
	UUID       string      `json:"uuid"`
	ClientDate string      `json:"clientDate"` // RFC3339
	TimeSkewMs int64       `json:"timeSkewMs"`
	Changes    []changeDTO `json:"changes"`
}

// multireadEntryDTO is one entry of the POST /multiread request body: at
// most one of pk/search/searchFirst is set.
type multireadEntryDTO struct {
	Table       string       `json:"table"`
	PK          model.Record `json:"pk,omitempty"`
	Search      *searchSpec  `json:"search,omitempty"`
	SearchFirst *searchSpec  `json:"searchFirst,omitempty"`
}

// credentialsDTO is the POST /auth/user request body. The credential
// check itself is delegated to SessionStore — this repo only defines the
// interface and an in-memory reference implementation, since auth/session
// is an external collaborator.
type credentialsDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
