package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeStarter struct {
	tx   *fakeTx
	opts pgx.TxOptions
	err  error
}

func (s *fakeStarter) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), starter, PostingTxOptions, func(pgx.Tx) error { return nil }))
	require.True(t, starter.tx.committed)
	require.False(t, starter.tx.rolledBack)
	require.Equal(t, pgx.ReadCommitted, starter.opts.IsoLevel)
}

func TestWithTxRollsBackAndKeepsError(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	boom := errors.New("insufficient stock")
	err := WithTx(context.Background(), starter, PostingTxOptions, func(pgx.Tx) error { return boom })
	require.Equal(t, boom, err)
	require.True(t, starter.tx.rolledBack)
	require.False(t, starter.tx.committed)
}

func TestWithTxWrapsBeginAndCommitFailures(t *testing.T) {
	refused := errors.New("connection refused")
	err := WithTx(context.Background(), &fakeStarter{err: refused}, PostingTxOptions, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, refused)
	require.Contains(t, err.Error(), "platform/db")

	lost := errors.New("conn lost")
	err = WithTx(context.Background(), &fakeStarter{tx: &fakeTx{commitErr: lost}}, PostingTxOptions, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, lost)
}
