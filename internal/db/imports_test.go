package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		db   string
		want string
	}{
		{"replaces path", "postgres://u:p@localhost:5432/postgres?sslmode=disable", "gtfs_hsl_2024", "postgres://u:p@localhost:5432/gtfs_hsl_2024?sslmode=disable"},
		{"adds scheme", "u@db:5432/postgres", "gtfs", "postgres://u@db:5432/gtfs"},
		{"leading slash", "postgresql://db/postgres", "/gtfs", "postgresql://db/gtfs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDatabase(tt.dsn, tt.db)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := WithDatabase("", "gtfs")
	assert.Error(t, err)
}
