package dialect

import (
	"strconv"
	"strings"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// DriverName database/sql 注册的驱动名
func (d Dialect) DriverName() string {
	switch d.name {
	case NamePostgres:
		return "pgx"
	case NameSQLite:
		return "sqlite"
	default:
		return ""
	}
}

// QuoteIdentifier 按方言给标识符加引号，带点的限定名逐段处理。
// 未知方言返回原样。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.name == NameUnknown {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 把 ? 占位符依次改写为 $1、$2...，仅对 postgres 生效。
//
// 不解析 SQL：字符串字面量中的 ? 也会被替换，查询里不要写带 ? 的字面量。
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || query == "" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// IsUniqueViolation 按错误消息识别唯一键冲突
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint") ||
			strings.Contains(msg, "sqlstate 23505")
	}
}
