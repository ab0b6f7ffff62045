// Package migrations 内置各数据库方言的建表脚本
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// Dialects 支持的数据库方言
var Dialects = []string{"postgres", "mysql"}

// Load 按文件名顺序返回指定方言和方向（up/down）的全部语句
func Load(dialect, action string) ([]string, error) {
	if action != "up" && action != "down" {
		return nil, fmt.Errorf("unsupported action %q", action)
	}
	names, err := fs.Glob(files, fmt.Sprintf("%s/*.%s.sql", dialect, action))
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations for %q", action, dialect)
	}
	sort.Strings(names)
	if action == "down" {
		// 回滚时倒序执行
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	var stmts []string
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, SplitStatements(string(content))...)
	}
	return stmts, nil
}

// SplitStatements 按分号分割 SQL，忽略引号内的分号和注释行
func SplitStatements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
		inString   bool
		quote      rune
	)

	flush := func() {
		stmt := stripComments(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, r := range sql {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				quote = r
			} else if r == quote {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return statements
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
