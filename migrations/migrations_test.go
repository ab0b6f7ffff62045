package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (id INT);
INSERT INTO a VALUES ('x;y');

-- trailing
DROP TABLE b`

	stmts := SplitStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES ('x;y')", stmts[1])
	assert.Equal(t, "DROP TABLE b", stmts[2])
}

func TestLoad(t *testing.T) {
	for _, dialect := range Dialects {
		t.Run(dialect, func(t *testing.T) {
			up, err := Load(dialect, "up")
			require.NoError(t, err)

			var tables []string
			for _, stmt := range up {
				if strings.HasPrefix(stmt, "CREATE TABLE") {
					tables = append(tables, strings.Fields(stmt)[5])
				}
			}
			assert.Equal(t, []string{"users", "domains", "domain_mailboxes", "email_requests", "sms_logs"}, tables)

			down, err := Load(dialect, "down")
			require.NoError(t, err)
			assert.Len(t, down, 5)
			assert.Equal(t, "DROP TABLE IF EXISTS sms_logs", down[0])
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("postgres", "sideways")
	assert.Error(t, err)

	_, err = Load("oracle", "up")
	assert.Error(t, err)
}
