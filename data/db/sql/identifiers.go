package sql

import (
	"strings"

	"snaptrail/data/db/dialect"
)

// isSafeIdentifier 表名列名只允许 [A-Za-z_][A-Za-z0-9_]*，可用点连接多段
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			digit := ch >= '0' && ch <= '9'
			if !letter && (i == 0 || !digit) {
				return false
			}
		}
	}
	return true
}

func quoteTable(d dialect.Dialect, table string) string {
	if !isSafeIdentifier(table) {
		panic("unsafe table name " + table)
	}
	return d.QuoteIdentifier(table)
}

func quoteColumns(d dialect.Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if !isSafeIdentifier(c) {
			panic("unsafe column name " + c)
		}
		out[i] = d.QuoteIdentifier(c)
	}
	return out
}

// conditions 以 AND 连接的 WHERE 片段
type conditions struct {
	exprs []string
	args  []any
}

func (c *conditions) add(cond string, args []any) {
	if cond == "" {
		return
	}
	c.exprs = append(c.exprs, cond)
	c.args = append(c.args, args...)
}

func (c conditions) clause() string {
	if len(c.exprs) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.exprs, " AND ")
}
