package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardRepositoryTotals(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDashboardRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses`).
		WillReturnRows(sqlmock.NewRows([]string{"courses", "students", "enrollments", "reports"}).AddRow(3, 10, 12, 1))

	totals, err := repo.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Courses)
	assert.Equal(t, 12, totals.Enrollments)
	require.NoError(t, mock.ExpectationsWereMet())
}
