package sink

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name string

	tsCol    string
	minute   string
	hour     string
	idType   string
	tsType   string
	boolType string

	numbered    bool // $1, $2 placeholders
	epochNanos  bool // timestamps stored as unix nanoseconds
	inlineIndex bool // indexes declared inside CREATE TABLE
}

var (
	Postgres = Dialect{
		Name:     "postgres",
		tsCol:    `"timestamp"`,
		minute:   `to_char("timestamp", 'YYYY-MM-DD HH24:MI')`,
		hour:     `to_char("timestamp", 'YYYY-MM-DD HH24:00')`,
		idType:   "BIGSERIAL PRIMARY KEY",
		tsType:   "TIMESTAMPTZ",
		boolType: "BOOLEAN",
		numbered: true,
	}
	MySQL = Dialect{
		Name:        "mysql",
		tsCol:       "`timestamp`",
		minute:      "DATE_FORMAT(`timestamp`, '%Y-%m-%d %H:%i')",
		hour:        "DATE_FORMAT(`timestamp`, '%Y-%m-%d %H:00')",
		idType:      "BIGINT AUTO_INCREMENT PRIMARY KEY",
		tsType:      "DATETIME(6)",
		boolType:    "TINYINT(1)",
		inlineIndex: true,
	}
	SQLite = Dialect{
		Name:       "sqlite",
		tsCol:      `"timestamp"`,
		minute:     `strftime('%Y-%m-%d %H:%M', "timestamp" / 1000000000, 'unixepoch')`,
		hour:       `strftime('%Y-%m-%d %H:00', "timestamp" / 1000000000, 'unixepoch')`,
		idType:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		tsType:     "INTEGER",
		boolType:   "INTEGER",
		epochNanos: true,
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "timescale", "timescaledb":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// Render expands the {ts}, {minute} and {hour} markers and rebinds placeholders.
func (d Dialect) Render(q string) string {
	q = strings.NewReplacer("{ts}", d.tsCol, "{minute}", d.minute, "{hour}", d.hour).Replace(q)
	if !d.numbered {
		return q
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Time converts a timestamp into the stored representation.
func (d Dialect) Time(t time.Time) any {
	if d.epochNanos {
		return t.UnixNano()
	}
	return t.UTC()
}

func (d Dialect) Bool(v bool) any {
	if d.epochNanos {
		if v {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

type tableDef struct {
	name    string
	columns []string
	indexes map[string]string
}

func (d Dialect) tables() []tableDef {
	ts := d.tsCol
	return []tableDef{
		{
			name: "measurements",
			columns: []string{
				"id " + d.idType,
				"module VARCHAR(255) NOT NULL",
				"variable VARCHAR(255) NOT NULL",
				"value TEXT",
				ts + " " + d.tsType + " NOT NULL",
			},
			indexes: map[string]string{"idx_measurements_key": "module, variable, " + ts},
		},
		{
			name:    "message_stats",
			columns: []string{"id " + d.idType, ts + " " + d.tsType + " NOT NULL"},
			indexes: map[string]string{"idx_message_stats_ts": ts},
		},
		{
			name: "module_publications",
			columns: []string{
				"id " + d.idType,
				"module VARCHAR(255) NOT NULL",
				ts + " " + d.tsType + " NOT NULL",
			},
			indexes: map[string]string{"idx_module_publications_ts": ts},
		},
		{
			name: "mqtt_messages",
			columns: []string{
				"id " + d.idType,
				"topic VARCHAR(255) NOT NULL",
				"payload TEXT",
				ts + " " + d.tsType + " NOT NULL",
				"project VARCHAR(255)",
				"category VARCHAR(32)",
				"is_compliant " + d.boolType + " NOT NULL",
			},
			indexes: map[string]string{
				"idx_mqtt_messages_ts":      ts,
				"idx_mqtt_messages_project": "project, " + ts,
			},
		},
	}
}

// Schema returns the idempotent DDL statements for this dialect.
func (d Dialect) Schema() []string {
	var out []string
	for _, t := range d.tables() {
		cols := append([]string(nil), t.columns...)
		names := sortedKeys(t.indexes)
		if d.inlineIndex {
			for _, name := range names {
				cols = append(cols, fmt.Sprintf("INDEX %s (%s)", name, t.indexes[name]))
			}
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(cols, ", ")))
		if !d.inlineIndex {
			for _, name := range names {
				out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, t.name, t.indexes[name]))
			}
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
