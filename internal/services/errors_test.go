package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23503", Message: "fk"}, false},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"sqlite message", errors.New("UNIQUE constraint failed: users.email"), true},
		{"sqlite not null", errors.New("NOT NULL constraint failed: users.name"), false},
		{"sqlite foreign key", errors.New("FOREIGN KEY constraint failed"), false},
		{"sqlite check", errors.New("CHECK constraint failed: users"), false},
		{"postgres foreign key", &pgconn.PgError{Code: "23503", Message: "insert or update on table \"accounts\" violates foreign key constraint"}, false},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, isUniqueConstraintError(tc.err))
		})
	}
}
