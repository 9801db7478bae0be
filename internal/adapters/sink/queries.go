package sink

import (
	"fmt"
	"strings"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

const (
	ProjectErrorLimit  = 10
	ProjectTopicLimit  = 10
	ProjectRecentLimit = 10
)

// Queries holds every statement rendered for one dialect.
type Queries struct {
	CountRaw        string
	DeleteOldestRaw string

	History              string
	MessageStats         string
	PublicationTrends    string
	ModulesWithVariables string

	DeleteVariable           string
	DeleteModuleMeasurements string
	DeleteModulePublications string

	GlobalTotals   string
	ActiveProjects string
	Projects       string

	ProjectStats      string
	ProjectErrors     string
	ProjectFrequency  string
	ProjectCategories string
	ProjectTopTopics  string
	ProjectTimeline   string
	ProjectRecent     string
}

const compliantSum = "COALESCE(SUM(CASE WHEN is_compliant THEN 1 ELSE 0 END), 0)"

func (d Dialect) Queries() Queries {
	r := d.Render
	return Queries{
		CountRaw: r("SELECT COUNT(*) FROM mqtt_messages"),
		DeleteOldestRaw: r("DELETE FROM mqtt_messages WHERE id IN (" +
			"SELECT id FROM (SELECT id FROM mqtt_messages ORDER BY {ts} ASC, id ASC LIMIT ?) AS oldest)"),

		History: r("SELECT value, {ts} FROM measurements WHERE module = ? AND variable = ? " +
			"ORDER BY {ts} DESC, id DESC LIMIT ?"),
		MessageStats: r("SELECT {minute} AS bucket, COUNT(*) FROM message_stats WHERE {ts} >= ? " +
			"GROUP BY bucket ORDER BY bucket DESC LIMIT ?"),
		PublicationTrends: r("SELECT module, {hour} AS bucket, COUNT(*) FROM module_publications WHERE {ts} >= ? " +
			"GROUP BY module, bucket ORDER BY bucket ASC, module ASC"),
		ModulesWithVariables: r("SELECT DISTINCT module, variable FROM measurements ORDER BY module, variable"),

		DeleteVariable:           r("DELETE FROM measurements WHERE module = ? AND variable = ?"),
		DeleteModuleMeasurements: r("DELETE FROM measurements WHERE module = ?"),
		DeleteModulePublications: r("DELETE FROM module_publications WHERE module = ?"),

		GlobalTotals:   r("SELECT COUNT(*), " + compliantSum + " FROM mqtt_messages"),
		ActiveProjects: r("SELECT COUNT(DISTINCT project) FROM mqtt_messages WHERE {ts} >= ? AND project <> ''"),
		Projects: r("SELECT project, COUNT(*) AS total, " + compliantSum + ", MAX({ts}), COUNT(DISTINCT topic) " +
			"FROM mqtt_messages WHERE project IS NOT NULL AND project <> '' " +
			"GROUP BY project ORDER BY total DESC, project ASC"),

		ProjectStats: r("SELECT COUNT(*), " + compliantSum + ", MIN({ts}), MAX({ts}) FROM mqtt_messages WHERE project = ?"),
		ProjectErrors: r(fmt.Sprintf("SELECT topic, COUNT(*) AS n FROM mqtt_messages WHERE project = ? AND NOT is_compliant "+
			"GROUP BY topic ORDER BY n DESC, topic ASC LIMIT %d", ProjectErrorLimit)),
		ProjectFrequency: r("SELECT {minute} AS bucket, COUNT(*) FROM mqtt_messages WHERE project = ? AND {ts} >= ? " +
			"GROUP BY bucket ORDER BY bucket DESC"),
		ProjectCategories: r("SELECT category, COUNT(*) FROM mqtt_messages WHERE project = ? " +
			"GROUP BY category ORDER BY category ASC"),
		ProjectTopTopics: r(fmt.Sprintf("SELECT topic, COUNT(*) AS n, MAX({ts}) FROM mqtt_messages WHERE project = ? "+
			"GROUP BY topic ORDER BY n DESC, topic ASC LIMIT %d", ProjectTopicLimit)),
		ProjectTimeline: r("SELECT {hour} AS bucket, COUNT(*) FROM mqtt_messages WHERE project = ? AND {ts} >= ? " +
			"GROUP BY bucket ORDER BY bucket ASC"),
		ProjectRecent: r(fmt.Sprintf("SELECT topic, payload, {ts}, is_compliant FROM mqtt_messages WHERE project = ? "+
			"ORDER BY {ts} DESC, id DESC LIMIT %d", ProjectRecentLimit)),
	}
}

// recordTable returns the target table and column list for a record kind.
func recordTable(kind domain.RecordKind) (string, []string, error) {
	switch kind {
	case domain.RecordMeasurement:
		return "measurements", []string{"module", "variable", "value", "{ts}"}, nil
	case domain.RecordReceipt:
		return "message_stats", []string{"{ts}"}, nil
	case domain.RecordPublication:
		return "module_publications", []string{"module", "{ts}"}, nil
	case domain.RecordRawMessage:
		return "mqtt_messages", []string{"topic", "payload", "{ts}", "project", "category", "is_compliant"}, nil
	default:
		return "", nil, fmt.Errorf("unknown record kind %s", kind)
	}
}

// RecordArgs returns the column values of r in recordTable order.
func (d Dialect) RecordArgs(r *domain.Record) []any {
	switch r.Kind {
	case domain.RecordMeasurement:
		return []any{r.Module, r.Variable, r.Value, d.Time(r.Timestamp)}
	case domain.RecordReceipt:
		return []any{d.Time(r.Timestamp)}
	case domain.RecordPublication:
		return []any{r.Module, d.Time(r.Timestamp)}
	case domain.RecordRawMessage:
		return []any{r.Topic, r.Payload, d.Time(r.Timestamp), r.Project, string(r.Category), d.Bool(r.Compliant)}
	default:
		return nil
	}
}

// InsertStatement renders an INSERT of rows records of the given kind.
func (d Dialect) InsertStatement(kind domain.RecordKind, rows int) (string, error) {
	table, cols, err := recordTable(kind)
	if err != nil {
		return "", err
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return d.Render(b.String()), nil
}

// GroupByKind splits a batch per record kind, keeping arrival order inside each group.
func GroupByKind(records []domain.Record) map[domain.RecordKind][]*domain.Record {
	out := make(map[domain.RecordKind][]*domain.Record, 4)
	for i := range records {
		r := &records[i]
		out[r.Kind] = append(out[r.Kind], r)
	}
	return out
}

// Kinds lists record kinds in the order batches are written.
var Kinds = []domain.RecordKind{
	domain.RecordMeasurement,
	domain.RecordReceipt,
	domain.RecordPublication,
	domain.RecordRawMessage,
}
