package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/isolation"
)

type sinkTx struct {
	pgx.Tx
	execs      []sinkExec
	insertErr  error
	committed  bool
	rolledBack bool
}

type sinkExec struct {
	sql  string
	args []any
}

func (f *sinkTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sinkExec{sql: sql, args: args})
	if strings.Contains(sql, "INSERT INTO audit_logs") {
		return pgconn.CommandTag{}, f.insertErr
	}
	return pgconn.CommandTag{}, nil
}

func (f *sinkTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *sinkTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type sinkBeginner struct {
	tx    *sinkTx
	opens int
}

func (f *sinkBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.opens++
	return f.tx, nil
}

func sinkRecord(tenantID *string) Record {
	return Record{
		ID:           uuid.MustParse("6f1d2a3b-0000-4000-8000-000000000001"),
		TenantID:     tenantID,
		ActorID:      "TA1",
		Action:       ActionUpdate,
		ResourceKind: "actor",
		ResourceID:   "U9",
		SourceIP:     "10.0.0.1",
		At:           time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPGSinkAppendsUnderRecordTenant(t *testing.T) {
	tx := &sinkTx{}
	sink := NewPGSink(&sinkBeginner{tx: tx})

	require.NoError(t, sink.Append(context.Background(), sinkRecord(identity.TenantRef("T1"))))

	require.Len(t, tx.execs, 2)
	assert.Equal(t, []any{isolation.SettingTenant, "T1", isolation.SettingBypass, "off"}, tx.execs[0].args)

	insert := tx.execs[1]
	assert.Contains(t, insert.sql, "INSERT INTO audit_logs")
	assert.Contains(t, insert.sql, "ON CONFLICT (id) DO NOTHING")
	require.Len(t, insert.args, 10)
	assert.Equal(t, "T1", *insert.args[1].(*string))
	assert.Equal(t, "UPDATE", insert.args[3])
	assert.Equal(t, []byte("{}"), insert.args[6])
	assert.Equal(t, "10.0.0.1", *insert.args[7].(*string))
	assert.Nil(t, insert.args[8].(*string))
	assert.True(t, tx.committed)
}

func TestPGSinkTenantlessRecordUsesSystemContext(t *testing.T) {
	for name, tenantID := range map[string]*string{
		"nil":   nil,
		"blank": identity.TenantRef("  "),
	} {
		t.Run(name, func(t *testing.T) {
			tx := &sinkTx{}
			sink := NewPGSink(&sinkBeginner{tx: tx})

			require.NoError(t, sink.Append(context.Background(), sinkRecord(tenantID)))

			require.Len(t, tx.execs, 2)
			assert.Equal(t, []any{isolation.SettingTenant, "", isolation.SettingBypass, "on"}, tx.execs[0].args)
			assert.Nil(t, tx.execs[1].args[1].(*string))
			assert.True(t, tx.committed)
		})
	}
}

func TestPGSinkEncodesMetadata(t *testing.T) {
	tx := &sinkTx{}
	sink := NewPGSink(&sinkBeginner{tx: tx})
	record := sinkRecord(identity.TenantRef("T1"))
	record.Metadata = map[string]any{"changed": []string{"canViewAllTickets"}}

	require.NoError(t, sink.Append(context.Background(), record))
	assert.JSONEq(t, `{"changed":["canViewAllTickets"]}`, string(tx.execs[1].args[6].([]byte)))
}

func TestPGSinkInsertFailureRollsBack(t *testing.T) {
	tx := &sinkTx{insertErr: errors.New("connection reset")}
	sink := NewPGSink(&sinkBeginner{tx: tx})

	err := sink.Append(context.Background(), sinkRecord(identity.TenantRef("T1")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: insert")
	assert.ErrorIs(t, err, tx.insertErr)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestPGSinkReplayedRecordIsIdempotent(t *testing.T) {
	tx := &sinkTx{}
	beginner := &sinkBeginner{tx: tx}
	sink := NewPGSink(beginner)
	record := sinkRecord(identity.TenantRef("T1"))

	require.NoError(t, sink.Append(context.Background(), record))
	require.NoError(t, sink.Append(context.Background(), record))

	assert.Equal(t, 2, beginner.opens)
	require.Len(t, tx.execs, 4)
	assert.Equal(t, tx.execs[1].args[0], tx.execs[3].args[0])
	assert.Contains(t, tx.execs[3].sql, "ON CONFLICT (id) DO NOTHING")
}
