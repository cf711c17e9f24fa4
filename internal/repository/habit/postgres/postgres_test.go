package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"habitTracker/internal/config"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/repository"
	"habitTracker/internal/repository/habit/postgres"
	"habitTracker/internal/repository/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type HabitPostgresSuite struct {
	suite.Suite
	container testcontainers.Container
	pool      *pgxpool.Pool
	storage   *postgres.Storage
	ctx       context.Context
}

func (s *HabitPostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)
	port, err := container.MappedPort(s.ctx, "5432")
	require.NoError(s.T(), err)
	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	require.NoError(s.T(), migrations.Up(connString))
	s.pool, err = repository.NewPool(s.ctx, config.DatabaseConfig{URL: connString, MaxConnections: 4})
	require.NoError(s.T(), err)
	s.storage = postgres.New(s.pool, nil)
}

func (s *HabitPostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *HabitPostgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "DELETE FROM habit_events; DELETE FROM habits")
	require.NoError(s.T(), err)
}

func (s *HabitPostgresSuite) createHabit(userID uuid.UUID, name string) *habit.Habit {
	h := &habit.Habit{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		GoalType:   habit.GoalDaily,
		GoalTarget: 1,
		Color:      habit.DefaultColor,
		IsActive:   true,
	}
	require.NoError(s.T(), s.storage.Create(s.ctx, h))
	return h
}

func (s *HabitPostgresSuite) TestHabitLifecycle() {
	userID := uuid.New()
	h := s.createHabit(userID, "Stretch")

	habit.Apply(h, habit.WithGoalType(habit.GoalWeekly), habit.WithGoalTarget(4))
	require.NoError(s.T(), s.storage.Update(s.ctx, h))

	got, err := s.storage.GetByID(s.ctx, userID, h.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), habit.GoalWeekly, got.GoalType)
	assert.Equal(s.T(), 4, got.GoalTarget)

	require.NoError(s.T(), s.storage.DeleteSoft(s.ctx, h))
	_, err = s.storage.GetByID(s.ctx, userID, h.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

func (s *HabitPostgresSuite) TestGoalTargetCheckConstraint() {
	h := &habit.Habit{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Name:       "Broken",
		GoalType:   habit.GoalDaily,
		GoalTarget: 0,
		Color:      habit.DefaultColor,
	}
	assert.Error(s.T(), s.storage.Create(s.ctx, h))
}

func (s *HabitPostgresSuite) TestUpsertRevivesEvent() {
	userID := uuid.New()
	h := s.createHabit(userID, "Journal")
	day := habit.NewDate(2024, 2, 29)

	first := &habit.Event{HabitID: h.ID, UserID: userID, EventDate: day}
	require.NoError(s.T(), s.storage.Upsert(s.ctx, first))

	_, err := s.storage.SoftDelete(s.ctx, userID, h.ID, day)
	require.NoError(s.T(), err)

	again := &habit.Event{HabitID: h.ID, UserID: userID, EventDate: day}
	require.NoError(s.T(), s.storage.Upsert(s.ctx, again))
	assert.Equal(s.T(), first.ID, again.ID)
	assert.Nil(s.T(), again.DeletedAt)
	assert.Equal(s.T(), day, again.EventDate)

	var rows int
	require.NoError(s.T(), s.pool.QueryRow(s.ctx,
		"SELECT COUNT(*) FROM habit_events WHERE habit_id = $1", h.ID).Scan(&rows))
	assert.Equal(s.T(), 1, rows)

	events, err := s.storage.ListUserEvents(s.ctx, userID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), events, 1)
}

func TestHabitPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("интеграционный тест с docker")
	}
	suite.Run(t, new(HabitPostgresSuite))
}
