// Package schema reads the live shape of a PostgreSQL database, columns
// and indexes both, so tests can check that the applied schema matches
// what the statements expect.
package schema

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sql/pool"
)

const sqlTimeout = time.Minute

// Description holds the schema for a set of tables. Columns is keyed
// "table.column" and describes the column type; Indexes entries read
// "table.indexname".
type Description struct {
	Columns map[string]string
	Indexes []string
}

// columnsQuery folds each column's type, default, and nullability into one
// string. CONCAT rather than || so a NULL default does not blank the rest.
const columnsQuery = `
SELECT column_name,
       CONCAT(data_type, ' default=', column_default, ' nullable=', is_nullable)
  FROM information_schema.columns
 WHERE table_name = $1
`

const indexesQuery = `
SELECT DISTINCT indexname
  FROM pg_indexes
 WHERE tablename = $1
 ORDER BY indexname DESC
`

// TableNames interprets a "tables type", a struct whose fields are slices
// named after tables, and returns the lowercased table names.
func TableNames(tables interface{}) []string {
	ret := []string{}
	for _, field := range reflect.VisibleFields(reflect.TypeOf(tables)) {
		ret = append(ret, strings.ToLower(field.Name))
	}
	return ret
}

// GetDescription returns a Description covering every table listed in
// tables.
func GetDescription(ctx context.Context, db pool.Pool, tables interface{}) (*Description, error) {
	ctx, cancel := context.WithTimeout(ctx, sqlTimeout)
	defer cancel()
	ret := &Description{
		Columns: map[string]string{},
		Indexes: []string{},
	}
	for _, tableName := range TableNames(tables) {
		if err := describeColumns(ctx, db, tableName, ret); err != nil {
			return nil, skerr.Wrap(err)
		}
		if err := describeIndexes(ctx, db, tableName, ret); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return ret, nil
}

func describeColumns(ctx context.Context, db pool.Pool, tableName string, dst *Description) error {
	rows, err := db.Query(ctx, columnsQuery, tableName)
	if err != nil {
		return skerr.Wrap(err)
	}
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return skerr.Wrap(err)
		}
		dst.Columns[tableName+"."+name] = typ
	}
	return nil
}

func describeIndexes(ctx context.Context, db pool.Pool, tableName string, dst *Description) error {
	rows, err := db.Query(ctx, indexesQuery, tableName)
	if err != nil {
		return skerr.Wrap(err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return skerr.Wrap(err)
		}
		// Every table has a primary key, so its index adds no information.
		if name == tableName+"_pkey" {
			continue
		}
		dst.Indexes = append(dst.Indexes, tableName+"."+name)
	}
	return nil
}
