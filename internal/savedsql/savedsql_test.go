package savedsql_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/savedsql"
)

func TestExtractPlaceholders(t *testing.T) {
	got := savedsql.ExtractPlaceholders("SELECT * FROM entries WHERE a = {{x}} AND b = {{y}} AND c = {{x}}")
	require.Equal(t, []string{"x", "y"}, got)
}

// TestValidateRejectsUndeclaredPlaceholder: a placeholder with no matching
// declared variable fails with the UGOITE_SQL_VALIDATION prefix.
func TestValidateRejectsUndeclaredPlaceholder(t *testing.T) {
	err := savedsql.Validate("SELECT * FROM entries WHERE a = {{x}}", nil)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "UGOITE_SQL_VALIDATION"))
}

func TestValidateRejectsUnusedDeclaredVariable(t *testing.T) {
	err := savedsql.Validate("SELECT * FROM entries", []savedsql.Variable{{Name: "x", Type: "string"}})
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "UGOITE_SQL_VALIDATION"))
}

func TestValidateRejectsUnparsableSQL(t *testing.T) {
	err := savedsql.Validate("NOT EVEN SQL {{x}}", []savedsql.Variable{{Name: "x", Type: "string"}})
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "UGOITE_SQL_VALIDATION"))
}

func TestValidateAcceptsMatchingPlaceholders(t *testing.T) {
	err := savedsql.Validate(
		"SELECT * FROM entries WHERE author = {{author}}",
		[]savedsql.Variable{{Name: "author", Type: "string"}},
	)
	require.NoError(t, err)
}

func TestSubstitute(t *testing.T) {
	out := savedsql.Substitute("SELECT * FROM entries WHERE author = {{author}}", map[string]string{"author": "alice"})
	require.Equal(t, "SELECT * FROM entries WHERE author = 'alice'", out)
}
