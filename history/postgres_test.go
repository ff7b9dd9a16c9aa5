// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nlpodyssey/voicecart-go/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPgConn is a mock implementation of PgConnInterface for testing
type MockPgConn struct {
	mock.Mock
}

func (m *MockPgConn) Query(ctx context.Context, sql string, args ...any) (PgRowsInterface, error) {
	arguments := []any{ctx, sql}
	arguments = append(arguments, args...)
	ret := m.Called(arguments...)
	return ret.Get(0).(PgRowsInterface), ret.Error(1)
}

func (m *MockPgConn) Exec(ctx context.Context, sql string, args ...any) (any, error) {
	arguments := []any{ctx, sql}
	arguments = append(arguments, args...)
	ret := m.Called(arguments...)
	return ret.Get(0), ret.Error(1)
}

func (m *MockPgConn) Close(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

// MockPgRows is a mock implementation of PgRowsInterface for testing
type MockPgRows struct {
	data []string
	pos  int
}

func NewMockPgRows(data []string) *MockPgRows {
	return &MockPgRows{data: data, pos: -1}
}

func (m *MockPgRows) Next() bool {
	m.pos++
	return m.pos < len(m.data)
}

func (m *MockPgRows) Scan(dest ...any) error {
	if m.pos >= len(m.data) {
		return fmt.Errorf("no more rows")
	}
	if len(dest) > 0 {
		if strPtr, ok := dest[0].(*string); ok {
			*strPtr = m.data[m.pos]
		}
	}
	return nil
}

func (m *MockPgRows) Err() error {
	return nil
}

func (m *MockPgRows) Close() {}

// Helper function to create a test store with mock connection
func createMockPgStore(t *testing.T, sessionID string, mockConn *MockPgConn) *PgStore {
	store, err := NewPgStore(context.Background(), PgStoreParams{
		SessionID:    sessionID,
		SessionTable: "test_sessions",
		EntriesTable: "test_entries",
		Conn:         mockConn,
	})
	require.NoError(t, err)
	return store
}

func expectInitDB(mockConn *MockPgConn) {
	mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "CREATE TABLE IF NOT EXISTS") ||
			strings.Contains(sql, "CREATE INDEX IF NOT EXISTS")
	})).Return(nil, nil)
}

func TestPgStore_AddEntries(t *testing.T) {
	ctx := context.Background()
	mockConn := &MockPgConn{}
	expectInitDB(mockConn)

	mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (session_id) DO NOTHING")
	}), "test").Return(nil, nil).Once()

	entries := testEntries()
	for _, entry := range entries {
		entryData, err := marshalEntry(entry)
		require.NoError(t, err)
		mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "INSERT INTO test_entries")
		}), "test", entryData).Return(nil, nil).Once()
	}

	mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "SET updated_at = NOW()")
	}), "test").Return(nil, nil).Once()

	store := createMockPgStore(t, "test", mockConn)
	require.NoError(t, store.AddEntries(ctx, entries))
	mockConn.AssertExpectations(t)
}

func TestPgStore_Entries(t *testing.T) {
	ctx := context.Background()
	entries := testEntries()

	rowData := make([]string, len(entries))
	for i, entry := range entries {
		data, err := marshalEntry(entry)
		require.NoError(t, err)
		rowData[i] = data
	}

	t.Run("no limit", func(t *testing.T) {
		mockConn := &MockPgConn{}
		expectInitDB(mockConn)
		mockConn.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "ORDER BY created_at ASC")
		}), "test").Return(PgRowsInterface(NewMockPgRows(rowData)), nil).Once()

		store := createMockPgStore(t, "test", mockConn)
		retrieved, err := store.Entries(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, entries, retrieved)
		mockConn.AssertExpectations(t)
	})

	t.Run("with limit", func(t *testing.T) {
		// Latest-first rows from the database come back reversed
		mockConn := &MockPgConn{}
		expectInitDB(mockConn)
		mockConn.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "ORDER BY created_at DESC")
		}), "test", 2).Return(PgRowsInterface(NewMockPgRows([]string{rowData[3], rowData[2]})), nil).Once()

		store := createMockPgStore(t, "test", mockConn)
		retrieved, err := store.Entries(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, entries[2:], retrieved)
		mockConn.AssertExpectations(t)
	})

	t.Run("corrupted rows are skipped", func(t *testing.T) {
		mockConn := &MockPgConn{}
		expectInitDB(mockConn)
		mockConn.On("Query", mock.Anything, mock.Anything, "test").
			Return(PgRowsInterface(NewMockPgRows([]string{rowData[0], "{not json", rowData[1]})), nil).Once()

		store := createMockPgStore(t, "test", mockConn)
		retrieved, err := store.Entries(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, entries[:2], retrieved)
		mockConn.AssertExpectations(t)
	})
}

func TestPgStore_Clear(t *testing.T) {
	ctx := context.Background()
	mockConn := &MockPgConn{}
	expectInitDB(mockConn)

	mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "DELETE FROM test_entries")
	}), "test").Return(nil, nil).Once()
	mockConn.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "DELETE FROM test_sessions")
	}), "test").Return(nil, nil).Once()

	store := createMockPgStore(t, "test", mockConn)
	require.NoError(t, store.Clear(ctx))
	mockConn.AssertExpectations(t)
}

func TestPgStore_RequiresConnectionString(t *testing.T) {
	_, err := NewPgStore(context.Background(), PgStoreParams{SessionID: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string is required")
}

func TestPgStoreEntryRoundTrip(t *testing.T) {
	entry := IntentEntry(realtime.FilterArguments{Category: "shirts", MaxPrice: 30})
	data, err := marshalEntry(entry)
	require.NoError(t, err)
	decoded, err := unmarshalEntry(data)
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}
